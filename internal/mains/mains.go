// Package mains works out which electrical mains frequency a recording's hum
// sits at: measured from the audio when it can be, otherwise guessed from the
// system timezone.
package mains

import (
	"math"
	"strings"
	"sync"

	tz "github.com/medama-io/go-timezone-country"
	"github.com/thlib/go-timezone-local/tzlocal"
)

// Mains frequencies in Hz.
const (
	Hz50 = 50
	Hz60 = 60

	// DefaultHz is used when the location is unknown; most of the world is 50 Hz.
	DefaultHz = Hz50
)

var countryMap = sync.OnceValues(tz.NewTimezoneCountryMap)

// Frequency returns the local mains frequency from the system timezone.
func Frequency() int {
	timezone, err := tzlocal.RuntimeTZ()
	if err != nil {
		return DefaultHz
	}
	return FrequencyForTimezone(timezone)
}

// FrequencyForTimezone returns the mains frequency for an IANA timezone.
func FrequencyForTimezone(timezone string) int {
	if timezone == "UTC" || timezone == "GMT" || strings.HasPrefix(timezone, "Etc/") {
		return DefaultHz
	}
	m, err := countryMap()
	if err != nil {
		return DefaultHz
	}
	country, err := m.GetCountry(timezone)
	if err != nil {
		return DefaultHz
	}
	return frequencyForCountry(country)
}

// Resolve picks the frequency to notch. A measured 50 or 60 Hz wins;
// anything else falls back to the local frequency.
func Resolve(measured int) int {
	if measured == Hz50 || measured == Hz60 {
		return measured
	}
	return Frequency()
}

// Harmonics returns up to count multiples of fundamental, starting with the
// fundamental itself, that lie below the Nyquist frequency. A sampleRate of
// zero skips the Nyquist limit.
func Harmonics(fundamental float64, count, sampleRate int) []float64 {
	out := make([]float64, 0, max(count, 0))
	for h := 1; h <= count; h++ {
		f := fundamental * float64(h)
		if sampleRate > 0 && f >= float64(sampleRate)/2 {
			break
		}
		out = append(out, f)
	}
	return out
}

// Power returns |X(f)|^2 of x at frequency f (Goertzel). A full-scale sine
// at f over n samples scores about n^2/4.
func Power(x []float64, f float64, sampleRate int) float64 {
	coeff := 2 * math.Cos(2*math.Pi*f/float64(sampleRate))
	var s1, s2 float64
	for _, v := range x {
		s0 := v + coeff*s1 - s2
		s2, s1 = s1, s0
	}
	return s1*s1 + s2*s2 - coeff*s1*s2
}

// frequencyForCountry returns the mains frequency for a country name.
// Japan is split by region; the 50 Hz east includes Tokyo.
func frequencyForCountry(country string) int {
	if hz60[country] {
		return Hz60
	}
	return DefaultHz
}

// hz60 holds the countries on 60 Hz mains, after
// https://en.wikipedia.org/wiki/Mains_electricity_by_country.
// Brazil has 50 Hz pockets but is predominantly 60 Hz.
var hz60 = set(
	"United States", "Canada", "Mexico",
	"Belize", "Costa Rica", "El Salvador", "Guatemala", "Honduras", "Nicaragua", "Panama",
	"Bahamas", "Barbados", "Cayman Islands", "Cuba", "Dominican Republic", "Haiti",
	"Jamaica", "Puerto Rico", "Trinidad and Tobago", "U.S. Virgin Islands",
	"Brazil", "Colombia", "Ecuador", "Guyana", "Peru", "Suriname", "Venezuela",
	"South Korea", "Taiwan", "Philippines", "Saudi Arabia",
	"Guam", "American Samoa", "Marshall Islands", "Micronesia", "Palau",
)

func set(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}
