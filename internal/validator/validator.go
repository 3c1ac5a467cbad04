package validator

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	MaxContentLength = 4000
	MaxEmojiLength   = 32
	MaxNameLength    = 64
	MaxBioLength     = 512
)

var (
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9._+-]*[a-zA-Z0-9])?@[a-zA-Z0-9]([a-zA-Z0-9.-]*[a-zA-Z0-9])?\.[a-zA-Z]{2,}$`)
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)
	lowercase     = regexp.MustCompile(`[a-z]`)
	uppercase     = regexp.MustCompile(`[A-Z]`)
	number        = regexp.MustCompile(`\d`)
	colorRegex    = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)
)

func Email(email string) error {
	const maxlength = 64

	if len(email) > maxlength {
		return errors.New("long_email")
	}

	if !emailRegex.MatchString(email) {
		return errors.New("bad_format")
	}

	return nil
}

func Username(username string) error {
	length := utf8.RuneCountInString(username)
	if length < 3 {
		return errors.New("short_username")
	} else if length > 32 {
		return errors.New("long_username")
	}

	if !usernameRegex.MatchString(username) {
		return errors.New("bad_username")
	}
	return nil
}

func Password(password string) error {
	length := len(password)
	if length < 6 {
		return errors.New("short_password")
	} else if length > 32 {
		return errors.New("long_password")
	}

	if !lowercase.MatchString(password) {
		return errors.New("no_lowercase")
	}
	if !uppercase.MatchString(password) {
		return errors.New("no_uppercase")
	}
	if !number.MatchString(password) {
		return errors.New("no_number")
	}
	return nil
}

// Content checks a message body. A message may be empty only when it carries a file.
func Content(content string, hasFile bool) error {
	if strings.TrimSpace(content) == "" && !hasFile {
		return errors.New("empty_content")
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return errors.New("long_content")
	}
	if !utf8.ValidString(content) {
		return errors.New("bad_encoding")
	}
	return nil
}

func Emoji(emoji string) error {
	if strings.TrimSpace(emoji) == "" {
		return errors.New("empty_emoji")
	}
	if len(emoji) > MaxEmojiLength {
		return errors.New("long_emoji")
	}
	if strings.ContainsAny(emoji, " \t\r\n") {
		return errors.New("bad_emoji")
	}
	return nil
}

// Name is used for chat, server, channel and role names.
func Name(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return errors.New("empty_name")
	}
	if utf8.RuneCountInString(trimmed) > MaxNameLength {
		return errors.New("long_name")
	}
	return nil
}

func Color(color string) error {
	if !colorRegex.MatchString(color) {
		return errors.New("bad_color")
	}
	return nil
}

func Bio(bio string) error {
	if utf8.RuneCountInString(bio) > MaxBioLength {
		return errors.New("long_bio")
	}
	return nil
}
