package settings

import "testing"

func TestValidateRejectsZeroCapacity(t *testing.T) {
	s := &Settings{
		HTTPAddr:         ":8080",
		MinAgentCapacity: 0,
		MaxPublishRate:   10,
		LogLevel:         "info",
		LogFormat:        "json",
	}
	if err := s.Validate(); err == nil {
		t.Fatalf("expected error for zero MinAgentCapacity")
	}
}

func TestValidateRejectsBadLogLevel(t *testing.T) {
	s := &Settings{
		HTTPAddr:         ":8080",
		MinAgentCapacity: 10,
		MaxPublishRate:   10,
		LogLevel:         "verbose",
		LogFormat:        "json",
	}
	if err := s.Validate(); err == nil {
		t.Fatalf("expected error for invalid LOG_LEVEL")
	}
}

func TestValidateRequiresKafkaTopicsWhenEnabled(t *testing.T) {
	s := &Settings{
		HTTPAddr:         ":8080",
		MinAgentCapacity: 10,
		MaxPublishRate:   10,
		LogLevel:         "info",
		LogFormat:        "json",
		KafkaEnabled:     true,
		KafkaTopics:      "",
	}
	if err := s.Validate(); err == nil {
		t.Fatalf("expected error when Kafka enabled without topics")
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	s := &Settings{
		HTTPAddr:         ":8080",
		MinAgentCapacity: 10,
		MaxPublishRate:   200,
		LogLevel:         "info",
		LogFormat:        "json",
	}
	if err := s.Validate(); err != nil {
		t.Fatalf("expected valid settings to pass, got %v", err)
	}
}
