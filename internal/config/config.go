// Package config loads the bridge's immutable configuration from the
// environment (optionally layered under a YAML file), the way
// enesaygn-device-service-v3 binds viper to env vars with explicit
// defaults. The resulting Config value never changes after Load returns;
// every other component treats it as read-only.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/qolsys/qolsys2mqtt/internal/errs"
)

// TriggerCommand enumerates the configured default alarm type used when a
// TRIGGER control command doesn't specify one.
type TriggerCommand string

const (
	TriggerDefault   TriggerCommand = "TRIGGER"
	TriggerFire      TriggerCommand = "TRIGGER_FIRE"
	TriggerPolice    TriggerCommand = "TRIGGER_POLICE"
	TriggerAuxiliary TriggerCommand = "TRIGGER_AUXILIARY"
)

type PanelConfig struct {
	Host            string
	Port            int
	Token           string
	UserCode        string
	UniqueID        string
	DeviceName      string
	MAC             string
	VerifyTLS       bool
}

type ArmingConfig struct {
	AwayExitDelay int
	StayExitDelay int
	AwayBypass    bool
	StayBypass    bool
}

type TriggerConfig struct {
	DefaultCommand TriggerCommand
}

type MQTTConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	QOS      int
	Retain   bool
	ClientID string
}

type HAConfig struct {
	DiscoveryPrefix     string
	CheckUserCode       bool
	UserCode            string
	CodeArmRequired     bool
	CodeDisarmRequired  bool
	CodeTriggerRequired bool
	StatusTopic         string
	StatusOnlinePayload string
}

type Config struct {
	Panel    PanelConfig
	Arming   ArmingConfig
	Trigger  TriggerConfig
	MQTT     MQTTConfig
	HA       HAConfig
	LogLevel string
}

// Load reads configuration from the environment (and, if present, the
// optional YAML file at configFile) and validates it. A validation
// failure is wrapped in errs.ErrConfig: fatal at startup, exit code 1.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("%w: reading config file: %v", errs.ErrConfig, err)
			}
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnv(v,
		"qolsys_panel_host", "qolsys_panel_port", "qolsys_panel_token",
		"qolsys_panel_user_code", "qolsys_panel_unique_id", "qolsys_panel_device_name",
		"qolsys_panel_mac", "qolsys_panel_verify_tls",
		"qolsys_arm_away_exit_delay", "qolsys_arm_stay_exit_delay",
		"qolsys_arm_away_bypass", "qolsys_arm_stay_bypass",
		"qolsys_trigger_default_command",
		"mqtt_host", "mqtt_port", "mqtt_username", "mqtt_password",
		"mqtt_qos", "mqtt_retain", "mqtt_client_id",
		"ha_discovery_prefix", "ha_check_user_code", "ha_user_code",
		"ha_code_arm_required", "ha_code_disarm_required", "ha_code_trigger_required",
		"ha_status_topic", "ha_status_online_payload",
		"log_level",
	)

	setDefaults(v)

	cfg := &Config{
		Panel: PanelConfig{
			Host:       v.GetString("qolsys_panel_host"),
			Port:       v.GetInt("qolsys_panel_port"),
			Token:      v.GetString("qolsys_panel_token"),
			UserCode:   v.GetString("qolsys_panel_user_code"),
			UniqueID:   v.GetString("qolsys_panel_unique_id"),
			DeviceName: v.GetString("qolsys_panel_device_name"),
			MAC:        v.GetString("qolsys_panel_mac"),
			VerifyTLS:  v.GetBool("qolsys_panel_verify_tls"),
		},
		Arming: ArmingConfig{
			AwayExitDelay: v.GetInt("qolsys_arm_away_exit_delay"),
			StayExitDelay: v.GetInt("qolsys_arm_stay_exit_delay"),
			AwayBypass:    v.GetBool("qolsys_arm_away_bypass"),
			StayBypass:    v.GetBool("qolsys_arm_stay_bypass"),
		},
		Trigger: TriggerConfig{
			DefaultCommand: TriggerCommand(strings.ToUpper(v.GetString("qolsys_trigger_default_command"))),
		},
		MQTT: MQTTConfig{
			Host:     v.GetString("mqtt_host"),
			Port:     v.GetInt("mqtt_port"),
			Username: v.GetString("mqtt_username"),
			Password: v.GetString("mqtt_password"),
			QOS:      v.GetInt("mqtt_qos"),
			Retain:   v.GetBool("mqtt_retain"),
			ClientID: v.GetString("mqtt_client_id"),
		},
		HA: HAConfig{
			DiscoveryPrefix:     v.GetString("ha_discovery_prefix"),
			CheckUserCode:       v.GetBool("ha_check_user_code"),
			UserCode:            v.GetString("ha_user_code"),
			CodeArmRequired:     v.GetBool("ha_code_arm_required"),
			CodeDisarmRequired:  v.GetBool("ha_code_disarm_required"),
			CodeTriggerRequired: v.GetBool("ha_code_trigger_required"),
			StatusTopic:         v.GetString("ha_status_topic"),
			StatusOnlinePayload: v.GetString("ha_status_online_payload"),
		},
		LogLevel: v.GetString("log_level"),
	}

	if cfg.HA.StatusTopic == "" {
		cfg.HA.StatusTopic = cfg.HA.DiscoveryPrefix + "/status"
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrConfig, err)
	}

	return cfg, nil
}

func bindEnv(v *viper.Viper, keys ...string) {
	for _, k := range keys {
		_ = v.BindEnv(k, strings.ToUpper(k))
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("qolsys_panel_port", 12345)
	v.SetDefault("qolsys_panel_unique_id", "qolsys_panel")
	v.SetDefault("qolsys_panel_device_name", "Qolsys Panel")
	v.SetDefault("qolsys_panel_verify_tls", false)
	v.SetDefault("qolsys_arm_away_exit_delay", 0)
	v.SetDefault("qolsys_arm_stay_exit_delay", 0)
	v.SetDefault("qolsys_arm_away_bypass", false)
	v.SetDefault("qolsys_arm_stay_bypass", false)
	v.SetDefault("qolsys_trigger_default_command", "TRIGGER")
	v.SetDefault("mqtt_port", 1883)
	v.SetDefault("mqtt_qos", 1)
	v.SetDefault("mqtt_retain", true)
	v.SetDefault("mqtt_client_id", "qolsys2mqtt")
	v.SetDefault("ha_discovery_prefix", "homeassistant")
	v.SetDefault("ha_check_user_code", true)
	v.SetDefault("ha_code_arm_required", false)
	v.SetDefault("ha_code_disarm_required", false)
	v.SetDefault("ha_code_trigger_required", false)
	v.SetDefault("ha_status_online_payload", "online")
	v.SetDefault("log_level", "info")
}

func (c *Config) validate() error {
	if c.Panel.Host == "" {
		return fmt.Errorf("QOLSYS_PANEL_HOST is required")
	}
	if c.Panel.Token == "" {
		return fmt.Errorf("QOLSYS_PANEL_TOKEN is required")
	}
	if c.Panel.UniqueID == "" {
		return fmt.Errorf("QOLSYS_PANEL_UNIQUE_ID must not be empty")
	}
	if c.MQTT.Host == "" {
		return fmt.Errorf("MQTT_HOST is required")
	}
	if err := validateCodeFormat(c.Panel.UserCode); err != nil {
		return fmt.Errorf("QOLSYS_PANEL_USER_CODE: %v", err)
	}
	if err := validateCodeFormat(c.HA.UserCode); err != nil {
		return fmt.Errorf("HA_USER_CODE: %v", err)
	}
	switch c.Trigger.DefaultCommand {
	case TriggerDefault, TriggerFire, TriggerPolice, TriggerAuxiliary:
	default:
		return fmt.Errorf("QOLSYS_TRIGGER_DEFAULT_COMMAND %q is not one of TRIGGER, TRIGGER_FIRE, TRIGGER_POLICE, TRIGGER_AUXILIARY", c.Trigger.DefaultCommand)
	}
	return nil
}

func validateCodeFormat(code string) error {
	if code == "" {
		return nil
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return fmt.Errorf("must contain only digits")
		}
	}
	if len(code) != 4 && len(code) != 6 {
		return fmt.Errorf("must be 4 or 6 digits")
	}
	return nil
}
