package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateDisplayURL(t *testing.T) {
	valid := []string{"", "https://pantry.example/display", "http://10.0.0.5:3000/screen?x=1"}
	for _, v := range valid {
		assert.NoError(t, ValidateDisplayURL(v), v)
	}

	invalid := []string{
		"javascript:alert(1)",
		"ftp://pantry.example/",
		"https://",
		"/relative/path",
		" https://pantry.example",
		"https://" + strings.Repeat("a", MaxURLLength),
	}
	for _, v := range invalid {
		assert.Error(t, ValidateDisplayURL(v), v)
	}
}

func TestValidateTimezone(t *testing.T) {
	assert.NoError(t, ValidateTimezone("America/New_York"))
	assert.NoError(t, ValidateTimezone("UTC"))

	assert.Error(t, ValidateTimezone(""))
	assert.Error(t, ValidateTimezone("Local"))
	assert.Error(t, ValidateTimezone("Mars/Olympus_Mons"))
}

func TestValidateWindow(t *testing.T) {
	assert.NoError(t, ValidateWindow(0, "09:00", "12:30"))
	assert.NoError(t, ValidateWindow(6, "00:00", "23:59"))

	assert.Error(t, ValidateWindow(7, "09:00", "12:00"))
	assert.Error(t, ValidateWindow(-1, "09:00", "12:00"))
	assert.Error(t, ValidateWindow(1, "9:00", "12:00"))
	assert.Error(t, ValidateWindow(1, "09:00", "24:00"))
	assert.Error(t, ValidateWindow(1, "12:00", "12:00"))
	assert.Error(t, ValidateWindow(1, "13:00", "12:00"))
}
