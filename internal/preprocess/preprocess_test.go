package preprocess

import "testing"

func TestPreprocessEmptyMessage(t *testing.T) {
	r := Preprocess("   ")
	if r.Language != "unknown" {
		t.Errorf("expected unknown language for blank message, got %s", r.Language)
	}
	if r.Sentiment.Neutral != 1.0 {
		t.Errorf("expected neutral sentiment for blank message, got %+v", r.Sentiment)
	}
}

func TestPreprocessCleansWhitespaceAndPunctuation(t *testing.T) {
	r := Preprocess("I'm   so excited!!!  Really???")
	if r.CleanedText != `I'm so excited! Really?` {
		t.Errorf("unexpected cleaned text: %q", r.CleanedText)
	}
}

func TestPreprocessDetectsPII(t *testing.T) {
	r := Preprocess("Reach me at jane@example.com anytime")
	if !r.ContainsPII {
		t.Error("expected ContainsPII=true for an email address")
	}
}

func TestPreprocessSentiment(t *testing.T) {
	r := Preprocess("I love hiking but I hate the traffic")
	if r.Sentiment.Positive == 0 || r.Sentiment.Negative == 0 {
		t.Errorf("expected both positive and negative signal, got %+v", r.Sentiment)
	}
}

func TestPreprocessTemporalMarkers(t *testing.T) {
	r := Preprocess("Let's meet tomorrow at 3:00pm")
	if len(r.TemporalMarkers) == 0 {
		t.Error("expected temporal markers to be detected")
	}
}

func TestShouldExtractRejectsShortMessages(t *testing.T) {
	r := Preprocess("ok")
	if ShouldExtract(r) {
		t.Error("expected a one-word message to be rejected")
	}
}

func TestShouldExtractRejectsPunctuationHeavyMessages(t *testing.T) {
	r := Preprocess("??? !!! ... ??? !!!")
	if ShouldExtract(r) {
		t.Error("expected a punctuation-heavy message to be rejected")
	}
}

func TestShouldExtractAcceptsOrdinaryMessage(t *testing.T) {
	r := Preprocess("My name is Sarah and I work at Google in San Francisco")
	if !ShouldExtract(r) {
		t.Errorf("expected an ordinary sentence to pass the extraction gate, got complexity %v", r.ComplexityScore)
	}
}

func TestExtractionHintsSuggestsTemporal(t *testing.T) {
	r := Preprocess("Let's meet tomorrow at noon")
	h := ExtractionHints(r)

	var gotTemporal bool
	for _, mt := range h.SuggestedMemoryTypes {
		if mt == "temporal" {
			gotTemporal = true
		}
	}
	if !gotTemporal {
		t.Errorf("expected temporal to be suggested, got %v", h.SuggestedMemoryTypes)
	}

	var gotFocus bool
	for _, f := range h.FocusAreas {
		if f == "temporal_information" {
			gotFocus = true
		}
	}
	if !gotFocus {
		t.Errorf("expected temporal_information focus area, got %v", h.FocusAreas)
	}
}

func TestExtractionHintsConfidenceAdjustment(t *testing.T) {
	r := Preprocess("hi there")
	h := ExtractionHints(r)
	if h.ConfidenceAdjustment >= 0 {
		t.Errorf("expected a negative confidence adjustment for a very short message, got %v", h.ConfidenceAdjustment)
	}
}
