package domain

import (
	"strings"
	"time"
)

type ZodiacSign string

const (
	Aries       ZodiacSign = "Aries"
	Taurus      ZodiacSign = "Taurus"
	Gemini      ZodiacSign = "Gemini"
	Cancer      ZodiacSign = "Cancer"
	Leo         ZodiacSign = "Leo"
	Virgo       ZodiacSign = "Virgo"
	Libra       ZodiacSign = "Libra"
	Scorpio     ZodiacSign = "Scorpio"
	Sagittarius ZodiacSign = "Sagittarius"
	Capricorn   ZodiacSign = "Capricorn"
	Aquarius    ZodiacSign = "Aquarius"
	Pisces      ZodiacSign = "Pisces"
)

// signStart lists the first day of each sun sign, in calendar order starting
// with Capricorn's tail in January.
var signStart = []struct {
	month time.Month
	day   int
	sign  ZodiacSign
}{
	{time.January, 20, Aquarius},
	{time.February, 19, Pisces},
	{time.March, 21, Aries},
	{time.April, 20, Taurus},
	{time.May, 21, Gemini},
	{time.June, 21, Cancer},
	{time.July, 23, Leo},
	{time.August, 23, Virgo},
	{time.September, 23, Libra},
	{time.October, 23, Scorpio},
	{time.November, 22, Sagittarius},
	{time.December, 22, Capricorn},
}

// SunSign returns the tropical sun sign for the calendar date of t.
func SunSign(t time.Time) ZodiacSign {
	month, day := t.Month(), t.Day()
	sign := Capricorn
	for _, s := range signStart {
		if month > s.month || (month == s.month && day >= s.day) {
			sign = s.sign
		}
	}
	return sign
}

// ParseZodiacSign accepts any casing and reports whether the name is known.
func ParseZodiacSign(name string) (ZodiacSign, bool) {
	trimmed := strings.TrimSpace(name)
	for _, s := range signStart {
		if strings.EqualFold(string(s.sign), trimmed) {
			return s.sign, true
		}
	}
	return "", false
}

// Element returns the classical element of the sign.
func (z ZodiacSign) Element() string {
	switch z {
	case Aries, Leo, Sagittarius:
		return "Fire"
	case Taurus, Virgo, Capricorn:
		return "Earth"
	case Gemini, Libra, Aquarius:
		return "Air"
	case Cancer, Scorpio, Pisces:
		return "Water"
	default:
		return ""
	}
}
