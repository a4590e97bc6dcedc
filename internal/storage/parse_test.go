package storage

import (
	"testing"
)

// ============================================================================
// ParsePrice 边界情况测试
// ============================================================================

func TestParsePrice_EdgeCases(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected float64
	}{
		// 正常情况
		{"standard_rub", "999 руб", 999},
		{"rub_sign", "999 ₽", 999},
		{"rub_abbrev", "999 р.", 999},
		{"rub_dot_suffix", "999 руб.", 999},
		{"no_space", "999руб", 999},
		{"thousands_space", "1 299 руб", 1299},
		{"nbsp_separator", "1 299 руб", 1299},
		{"decimal_comma", "499,50 руб", 499.5},
		{"decimal_point", "499.50 руб", 499.5},
		{"only_digits", "1200", 1200},
		{"zero", "0 руб", 0},

		// 错误情况：全部回落到 0.0
		{"empty_string", "", 0},
		{"only_currency", "руб", 0},
		{"only_spaces", "   ", 0},
		{"no_digits", "Free to Play", 0},
		{"only_comma", ",", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, currency := ParsePrice(tt.input)
			if value != tt.expected {
				t.Errorf("ParsePrice(%q) = %v, expected %v", tt.input, value, tt.expected)
			}
			if currency != "RUB" {
				t.Errorf("ParsePrice(%q) currency = %q, expected RUB", tt.input, currency)
			}
		})
	}
}

func TestParseDiscountPercent(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected int
	}{
		{"standard", "-50%", 50},
		{"no_minus", "75%", 75},
		{"single_digit", "-5%", 5},
		{"embedded", "скидка -33% сегодня", 33},
		{"empty", "", 0},
		{"no_digits", "нет скидки", 0},
		{"only_percent", "%", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ParseDiscountPercent(tt.input)
			if result != tt.expected {
				t.Errorf("ParseDiscountPercent(%q) = %d, expected %d", tt.input, result, tt.expected)
			}
		})
	}
}

func TestExtractAppID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard", "https://store.steampowered.com/app/12345/Some_Game/", "12345"},
		{"no_trailing_slash", "https://store.steampowered.com/app/730", "730"},
		{"not_an_app_url", "https://store.steampowered.com/news/", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ExtractAppID(tt.input)
			if result != tt.expected {
				t.Errorf("ExtractAppID(%q) = %q, expected %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestCleanTitle(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"trademark", "Half-Life™ 2", "half-life 2"},
		{"registered", "DOOM®", "doom"},
		{"copyright_and_spaces", "  Portal© ", "portal"},
		{"plain", "Stardew Valley", "stardew valley"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CleanTitle(tt.input)
			if result != tt.expected {
				t.Errorf("CleanTitle(%q) = %q, expected %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestDiscountAmount(t *testing.T) {
	tests := []struct {
		name     string
		original string
		current  string
		expected string
	}{
		{"standard", "999 руб", "799 руб", "200 руб"},
		{"no_original", "", "799 руб", ""},
		{"equal_prices", "799 руб", "799 руб", ""},
		{"current_higher", "500 руб", "799 руб", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := DiscountAmount(tt.original, tt.current)
			if result != tt.expected {
				t.Errorf("DiscountAmount(%q, %q) = %q, expected %q", tt.original, tt.current, result, tt.expected)
			}
		})
	}
}
