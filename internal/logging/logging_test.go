package logging

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestSetLevel(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"warn":    zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"info":    zerolog.InfoLevel,
		"":        zerolog.InfoLevel,
		"verbose": zerolog.InfoLevel,
	}
	for in, want := range tests {
		SetLevel(in)
		if got := zerolog.GlobalLevel(); got != want {
			t.Errorf("SetLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestStartupLoggerEvent(t *testing.T) {
	var buf bytes.Buffer
	orig := log.Logger
	log.Logger = zerolog.New(&buf)
	defer func() { log.Logger = orig }()

	NewStartupLogger("report-web").
		Version("1.2.3").
		Store("drafts", "sqlite").
		S3Bucket("photos", "litter-photos").
		SSMParam("geminiKey", "/litter/gemini").
		Feature("classification", true).
		Config("port", "8080").
		InitDuration(15 * time.Millisecond).
		Log()

	var evt map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &evt); err != nil {
		t.Fatalf("startup event is not JSON: %v\n%s", err, buf.String())
	}
	if evt["message"] != "Startup complete" {
		t.Errorf("message = %v", evt["message"])
	}
	process, _ := evt["process"].(map[string]interface{})
	if process["name"] != "report-web" || process["version"] != "1.2.3" {
		t.Errorf("process = %v", process)
	}
	resources, _ := evt["resources"].(map[string]interface{})
	stores, _ := resources["stores"].(map[string]interface{})
	if stores["drafts"] != "sqlite" {
		t.Errorf("stores = %v", stores)
	}
	if _, ok := resources["dynamoTables"]; ok {
		t.Error("empty resource group should be omitted")
	}
	features, _ := evt["features"].(map[string]interface{})
	if features["classification"] != true {
		t.Errorf("features = %v", features)
	}
}

func TestEnvOrDefault(t *testing.T) {
	t.Setenv("LITTER_TEST_VALUE", "")
	if got := EnvOrDefault("LITTER_TEST_VALUE", "fallback"); got != "fallback" {
		t.Errorf("got %q", got)
	}
	t.Setenv("LITTER_TEST_VALUE", "set")
	if got := EnvOrDefault("LITTER_TEST_VALUE", "fallback"); got != "set" {
		t.Errorf("got %q", got)
	}
}
