package gateway

import (
	"net"

	"github.com/oschwald/geoip2-golang"

	nymerrors "go.nymvpn.network/core/internal/errors"
)

// GeoIP resolves an IP address to its two-letter ISO country code. The
// Location entry/exit point variant (spec §4.6) cross-checks a
// candidate's self-reported Location against where its address actually
// geolocates when a database is configured, rather than trusting the
// directory's string unconditionally.
type GeoIP interface {
	CountryCode(ip net.IP) (string, error)
}

// MaxMindGeoIP backs GeoIP with a MaxMind GeoLite2-Country (or
// commercial GeoIP2-Country) database, the format config.GeoIPDatabase
// names.
type MaxMindGeoIP struct {
	reader *geoip2.Reader
}

// OpenGeoIP opens the database at path. Callers should Close it on
// shutdown.
func OpenGeoIP(path string) (*MaxMindGeoIP, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, nymerrors.Wrap(err, nymerrors.KindInternal, "open geoip database")
	}
	return &MaxMindGeoIP{reader: reader}, nil
}

func (g *MaxMindGeoIP) CountryCode(ip net.IP) (string, error) {
	record, err := g.reader.Country(ip)
	if err != nil {
		return "", nymerrors.Wrap(err, nymerrors.KindInternal, "geoip country lookup")
	}
	return record.Country.IsoCode, nil
}

func (g *MaxMindGeoIP) Close() error { return g.reader.Close() }
