package config

import (
	"errors"
	"os"
	"testing"

	"github.com/qolsys/qolsys2mqtt/internal/errs"
)

func setEnv(t *testing.T, kv map[string]string) {
	t.Helper()
	for k, v := range kv {
		t.Setenv(k, v)
	}
}

func minimalEnv() map[string]string {
	return map[string]string{
		"QOLSYS_PANEL_HOST":      "10.0.0.5",
		"QOLSYS_PANEL_TOKEN":     "panel-token",
		"QOLSYS_PANEL_UNIQUE_ID": "qolsys_panel",
		"MQTT_HOST":              "10.0.0.2",
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	setEnv(t, minimalEnv())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Panel.Port != 12345 {
		t.Errorf("expected default panel port 12345, got %d", cfg.Panel.Port)
	}
	if cfg.MQTT.Port != 1883 {
		t.Errorf("expected default mqtt port 1883, got %d", cfg.MQTT.Port)
	}
	if cfg.HA.DiscoveryPrefix != "homeassistant" {
		t.Errorf("expected default discovery prefix, got %q", cfg.HA.DiscoveryPrefix)
	}
	if cfg.HA.StatusTopic != "homeassistant/status" {
		t.Errorf("expected derived status topic, got %q", cfg.HA.StatusTopic)
	}
	if cfg.Trigger.DefaultCommand != TriggerDefault {
		t.Errorf("expected default trigger command TRIGGER, got %q", cfg.Trigger.DefaultCommand)
	}
}

func TestLoadMissingRequiredFieldIsConfigError(t *testing.T) {
	setEnv(t, map[string]string{
		"MQTT_HOST": "10.0.0.2",
	})
	os.Unsetenv("QOLSYS_PANEL_HOST")
	os.Unsetenv("QOLSYS_PANEL_TOKEN")

	_, err := Load("")
	if !errors.Is(err, errs.ErrConfig) {
		t.Fatalf("expected ErrConfig for missing QOLSYS_PANEL_HOST/TOKEN, got %v", err)
	}
}

func TestLoadRejectsBadCodeFormat(t *testing.T) {
	env := minimalEnv()
	env["QOLSYS_PANEL_USER_CODE"] = "12a4"
	setEnv(t, env)

	_, err := Load("")
	if !errors.Is(err, errs.ErrConfig) {
		t.Fatalf("expected ErrConfig for a malformed user code, got %v", err)
	}
}

func TestLoadRejectsUnknownTriggerDefault(t *testing.T) {
	env := minimalEnv()
	env["QOLSYS_TRIGGER_DEFAULT_COMMAND"] = "TRIGGER_NUKE"
	setEnv(t, env)

	_, err := Load("")
	if !errors.Is(err, errs.ErrConfig) {
		t.Fatalf("expected ErrConfig for an unrecognized trigger default, got %v", err)
	}
}

func TestLoadHonorsExplicitStatusTopic(t *testing.T) {
	env := minimalEnv()
	env["HA_STATUS_TOPIC"] = "custom/status"
	setEnv(t, env)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HA.StatusTopic != "custom/status" {
		t.Errorf("expected explicit status topic to be honored, got %q", cfg.HA.StatusTopic)
	}
}
