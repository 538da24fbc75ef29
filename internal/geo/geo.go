// Package geo annotates exit IPs with country, city and provider data from
// local MaxMind databases.
package geo

import (
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"
	"go.uber.org/multierr"

	"github.com/August26/proxyprobe/internal/model"
)

// Resolver implements model.IPResolver. Either database may be absent.
type Resolver struct {
	city *geoip2.Reader
	asn  *geoip2.Reader
}

var _ model.IPResolver = (*Resolver)(nil)

// Open loads a GeoIP2/GeoLite2 City database and an ASN database. An empty
// path skips that database; at least one must be given.
func Open(cityPath, asnPath string) (*Resolver, error) {
	if cityPath == "" && asnPath == "" {
		return nil, fmt.Errorf("geo: no database path given")
	}

	r := &Resolver{}
	if cityPath != "" {
		db, err := geoip2.Open(cityPath)
		if err != nil {
			return nil, fmt.Errorf("geo: open city db: %w", err)
		}
		r.city = db
	}
	if asnPath != "" {
		db, err := geoip2.Open(asnPath)
		if err != nil {
			_ = r.Close()
			return nil, fmt.Errorf("geo: open asn db: %w", err)
		}
		r.asn = db
	}
	return r, nil
}

// Lookup returns whatever the loaded databases know about ip.
func (r *Resolver) Lookup(ip string) (model.GeoInfo, error) {
	var info model.GeoInfo

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return info, fmt.Errorf("geo: invalid ip %q", ip)
	}

	var errs error
	if r.city != nil {
		rec, err := r.city.City(parsed)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("geo: city lookup: %w", err))
		} else {
			info.Country = rec.Country.IsoCode
			info.City = rec.City.Names["en"]
		}
	}
	if r.asn != nil {
		rec, err := r.asn.ASN(parsed)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("geo: asn lookup: %w", err))
		} else {
			info.ISP = rec.AutonomousSystemOrganization
		}
	}
	return info, errs
}

// Close releases both databases.
func (r *Resolver) Close() error {
	var err error
	if r.city != nil {
		err = multierr.Append(err, r.city.Close())
	}
	if r.asn != nil {
		err = multierr.Append(err, r.asn.Close())
	}
	return err
}
