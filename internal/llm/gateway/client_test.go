package gateway

import "testing"

func TestConfig_Validate(t *testing.T) {
	bad := &Config{Model: ""}
	if err := bad.Validate(); err == nil {
		t.Error("expected error for empty model")
	}

	temp := float32(3.0)
	bad2 := &Config{Model: "gpt-4o-mini", Temperature: &temp}
	if err := bad2.Validate(); err == nil {
		t.Error("expected error for out-of-range temperature")
	}

	good := &Config{Model: "gpt-4o-mini", MaxRetries: 3}
	if err := good.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRetryWait_Exponential(t *testing.T) {
	if retryWait(0).Seconds() != 2 {
		t.Errorf("retryWait(0) = %v, want 2s", retryWait(0))
	}
	if retryWait(1).Seconds() != 4 {
		t.Errorf("retryWait(1) = %v, want 4s", retryWait(1))
	}
}
