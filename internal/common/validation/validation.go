package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const (
	// Максимальные длины для различных полей
	MaxURLLength      = 2048
	MaxTimezoneLength = 64
	MaxWindowsPerWeek = 7 * 4
)

// HH:MM, 24-часовой формат
var clockRegex = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// ValidateDisplayURL проверяет адрес экрана очереди. Пустая строка очищает его.
func ValidateDisplayURL(raw string) error {
	if raw == "" {
		return nil
	}
	if len(raw) > MaxURLLength {
		return fmt.Errorf("url cannot exceed %d characters", MaxURLLength)
	}
	if strings.TrimSpace(raw) != raw {
		return fmt.Errorf("url must not have surrounding whitespace")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("url is malformed")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url must use http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("url must include a host")
	}
	return nil
}

// ValidateTimezone проверяет IANA идентификатор часового пояса
func ValidateTimezone(tz string) error {
	if tz == "" {
		return fmt.Errorf("timezone cannot be empty")
	}
	if len(tz) > MaxTimezoneLength {
		return fmt.Errorf("timezone cannot exceed %d characters", MaxTimezoneLength)
	}
	// time.LoadLocation принимает "Local", но для сохранённого состояния это бессмысленно
	if tz == "Local" {
		return fmt.Errorf("timezone must be an IANA identifier")
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return fmt.Errorf("unknown timezone %q", tz)
	}
	return nil
}

// ValidateClock проверяет время в формате HH:MM
func ValidateClock(value string) error {
	if !clockRegex.MatchString(value) {
		return fmt.Errorf("time %q must be HH:MM", value)
	}
	return nil
}

// ValidateWindow проверяет одно окно работы: день 0-6 (воскресенье = 0), открытие раньше закрытия
func ValidateWindow(day int, open, close string) error {
	if day < 0 || day > 6 {
		return fmt.Errorf("day must be between 0 and 6")
	}
	if err := ValidateClock(open); err != nil {
		return err
	}
	if err := ValidateClock(close); err != nil {
		return err
	}
	// строки HH:MM сравниваются лексикографически
	if open >= close {
		return fmt.Errorf("open time %s must be before close time %s", open, close)
	}
	return nil
}
