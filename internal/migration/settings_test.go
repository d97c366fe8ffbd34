package migration

import (
	"testing"
	"time"

	"channel_migrator/internal/models"
)

func TestResolveSettingsOverridesDefaults(t *testing.T) {
	defaults := RunSettings{Delay: time.Second, MaxRetries: 3, FloodProtect: true}

	got, err := ResolveSettings(defaults, map[string]string{
		models.SettingSourceChannel:  "@old_channel",
		models.SettingTargetChannel:  "-1001234567890",
		models.SettingStartMessageID: "15",
		models.SettingEndMessageID:   "",
		models.SettingDelay:          "2.5",
		models.SettingMaxRetries:     "5",
		models.SettingFloodProtect:   "false",
		"legacy_key":                 "ignored",
	})
	if err != nil {
		t.Fatalf("ResolveSettings: %v", err)
	}

	want := RunSettings{
		Source:         "@old_channel",
		Target:         "-1001234567890",
		StartMessageID: 15,
		Delay:          2500 * time.Millisecond,
		MaxRetries:     5,
		FloodProtect:   false,
	}
	if got != want {
		t.Fatalf("unexpected settings: got %+v want %+v", got, want)
	}
}

func TestResolveSettingsKeepsDefaults(t *testing.T) {
	defaults := RunSettings{Delay: time.Second, MaxRetries: 3, FloodProtect: true}

	got, err := ResolveSettings(defaults, nil)
	if err != nil {
		t.Fatalf("ResolveSettings: %v", err)
	}
	if got != defaults {
		t.Fatalf("expected defaults, got %+v", got)
	}
}

func TestValidateSetting(t *testing.T) {
	tests := []struct {
		key     string
		value   string
		wantErr bool
	}{
		{models.SettingDelay, "0.5", false},
		{models.SettingDelay, "-1", true},
		{models.SettingDelay, "fast", true},
		{models.SettingMaxRetries, "0", false},
		{models.SettingMaxRetries, "three", true},
		{models.SettingStartMessageID, "0", true},
		{models.SettingStartMessageID, "1", false},
		{models.SettingEndMessageID, "", false},
		{models.SettingFloodProtect, "yes", true},
		{models.SettingFloodProtect, "true", false},
		{"unknown", "x", true},
	}

	for _, tt := range tests {
		err := ValidateSetting(tt.key, tt.value)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ValidateSetting(%q, %q) error = %v, wantErr %v", tt.key, tt.value, err, tt.wantErr)
		}
	}
}
