package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jason-c-dev/harmonia-memory/internal/llm"
	"github.com/jason-c-dev/harmonia-memory/pkg/config"
)

// CheckStatus is the outcome of one environment check.
type CheckStatus string

const (
	StatusOK      CheckStatus = "ok"
	StatusWarn    CheckStatus = "warn"
	StatusFailed  CheckStatus = "failed"
)

// Check is one line of a validation report.
type Check struct {
	Name    string
	Status  CheckStatus
	Detail  string
}

// ValidationReport is the full result of ValidateEnvironment.
type ValidationReport struct {
	Checks []Check
}

// OK reports whether every check passed (warnings are non-fatal).
func (r *ValidationReport) OK() bool {
	for _, c := range r.Checks {
		if c.Status == StatusFailed {
			return false
		}
	}
	return true
}

// String renders the report the way a doctor-style CLI command would.
func (r *ValidationReport) String() string {
	out := ""
	for _, c := range r.Checks {
		marker := "OK"
		switch c.Status {
		case StatusWarn:
			marker = "WARN"
		case StatusFailed:
			marker = "FAILED"
		}
		out += fmt.Sprintf("%-20s %-7s %s\n", c.Name, marker, c.Detail)
	}
	return out
}

// ValidateEnvironment checks that the configured data directory is
// writable and that the configured LLM backend is reachable.
func ValidateEnvironment(cfg *config.Config) *ValidationReport {
	report := &ValidationReport{}

	report.Checks = append(report.Checks, checkDataDir(cfg))
	report.Checks = append(report.Checks, checkConfig(cfg))
	report.Checks = append(report.Checks, checkLLM(cfg))

	return report
}

func checkDataDir(cfg *config.Config) Check {
	if err := cfg.EnsureDataDir(); err != nil {
		return Check{Name: "data_dir", Status: StatusFailed, Detail: err.Error()}
	}
	if info, err := os.Stat(cfg.DataDir); err != nil || !info.IsDir() {
		return Check{Name: "data_dir", Status: StatusFailed, Detail: "not a directory: " + cfg.DataDir}
	}
	return Check{Name: "data_dir", Status: StatusOK, Detail: cfg.DataDir}
}

func checkConfig(cfg *config.Config) Check {
	if err := cfg.Validate(); err != nil {
		return Check{Name: "config", Status: StatusFailed, Detail: err.Error()}
	}
	return Check{Name: "config", Status: StatusOK, Detail: "valid"}
}

func checkLLM(cfg *config.Config) Check {
	client := llm.New(llm.Config{
		BaseURL:        cfg.LLM.BaseURL,
		ChatModel:      cfg.LLM.ChatModel,
		RequestTimeout: cfg.LLM.RequestTimeout,
		MaxRetries:     cfg.LLM.MaxRetries,
		HealthInterval: cfg.LLM.HealthInterval,
	})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Complete(ctx, "", "ping"); err != nil {
		return Check{Name: "llm", Status: StatusWarn, Detail: fmt.Sprintf("%s unreachable at %s: %v", cfg.LLM.ChatModel, cfg.LLM.BaseURL, err)}
	}
	return Check{Name: "llm", Status: StatusOK, Detail: fmt.Sprintf("%s reachable at %s", cfg.LLM.ChatModel, cfg.LLM.BaseURL)}
}
