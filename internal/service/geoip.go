package service

import (
	"fmt"
	"log"
	"net"

	"github.com/oschwald/geoip2-golang"
	"github.com/oschwald/maxminddb-golang"

	"apache-log-sentinel/internal/model"
)

// datacenterASNs maps well-known hosting provider ASNs to a short slug.
// Traffic from these networks is machine-originated far more often than
// residential traffic, so findings get marked accordingly.
var datacenterASNs = map[uint]string{
	16509:  "aws",
	14618:  "aws",
	8075:   "azure",
	15169:  "gcp",
	396982: "gcp",
	14061:  "digitalocean",
	63949:  "linode",
	31898:  "oracle",
	20473:  "vultr",
	24940:  "hetzner",
	213230: "hetzner",
	16276:  "ovh",
	51167:  "contabo",
	12876:  "scaleway",
	45102:  "alibaba",
	45090:  "tencent",
}

// asnEntry is the slice of the MaxMind ASN record this service decodes.
type asnEntry struct {
	Number uint   `maxminddb:"autonomous_system_number"`
	Org    string `maxminddb:"autonomous_system_organization"`
}

// GeoSource is the resolved origin of one address.
type GeoSource struct {
	Country string
	Org     string
	Hosting bool
}

// GeoIPService annotates findings with country and network origin when the
// MaxMind databases are configured. Without them every method degrades to a
// no-op, so callers never need to branch.
type GeoIPService struct {
	country *geoip2.Reader
	asn     *maxminddb.Reader
}

func NewGeoIPService(countryPath, asnPath string) *GeoIPService {
	svc := &GeoIPService{}

	if countryPath != "" {
		reader, err := geoip2.Open(countryPath)
		if err != nil {
			log.Printf("[GeoIP] Country database unavailable: %v", err)
		} else {
			svc.country = reader
			log.Printf("[GeoIP] Country database loaded from %s", countryPath)
		}
	}
	if asnPath != "" {
		reader, err := maxminddb.Open(asnPath)
		if err != nil {
			log.Printf("[GeoIP] ASN database unavailable: %v", err)
		} else {
			svc.asn = reader
			log.Printf("[GeoIP] ASN database loaded from %s", asnPath)
		}
	}

	return svc
}

// Enabled reports whether at least one database is open.
func (s *GeoIPService) Enabled() bool {
	return s.country != nil || s.asn != nil
}

func (s *GeoIPService) Close() {
	if s.country != nil {
		s.country.Close()
	}
	if s.asn != nil {
		s.asn.Close()
	}
}

// Lookup resolves one host. The second return is false when the host is not
// an IP address, no database is open, or neither database has the address.
func (s *GeoIPService) Lookup(host string) (GeoSource, bool) {
	ip := net.ParseIP(host)
	if ip == nil || !s.Enabled() {
		return GeoSource{}, false
	}

	source := GeoSource{}
	found := false

	if s.country != nil {
		record, err := s.country.Country(ip)
		if err == nil && record != nil {
			if name := record.Country.Names["en"]; name != "" {
				source.Country = name
				found = true
			} else if record.Country.IsoCode != "" {
				source.Country = record.Country.IsoCode
				found = true
			}
		}
	}

	if s.asn != nil {
		var entry asnEntry
		if err := s.asn.Lookup(ip, &entry); err == nil && entry.Org != "" {
			source.Org = formatOrg(entry.Org, entry.Number)
			source.Hosting = isDatacenterASN(entry.Number)
			found = true
		}
	}

	return source, found
}

// AnnotateAlerts fills the geo fields of source-IP alerts in place. Lookup
// failures leave the alert untouched.
func (s *GeoIPService) AnnotateAlerts(alerts []model.AnomalyAlert) {
	if !s.Enabled() {
		return
	}
	for i := range alerts {
		if alerts[i].Column != "remote_host" {
			continue
		}
		host, ok := alerts[i].Value.(string)
		if !ok {
			continue
		}
		source, ok := s.Lookup(host)
		if !ok {
			continue
		}
		if source.Country != "" {
			country := source.Country
			alerts[i].GeoCountry = &country
		}
		if source.Org != "" {
			org := source.Org
			if source.Hosting {
				org += " (hosting)"
			}
			alerts[i].GeoOrg = &org
		}
	}
}

// AnnotateThreats adds source details to abuse patterns, keyed off the first
// affected address.
func (s *GeoIPService) AnnotateThreats(patterns []model.AbusePattern) {
	if !s.Enabled() {
		return
	}
	for i := range patterns {
		if len(patterns[i].AffectedIPs) == 0 {
			continue
		}
		source, ok := s.Lookup(patterns[i].AffectedIPs[0])
		if !ok {
			continue
		}
		if patterns[i].Details == nil {
			patterns[i].Details = model.Details{}
		}
		if source.Country != "" {
			patterns[i].Details["source_country"] = source.Country
		}
		if source.Org != "" {
			patterns[i].Details["source_org"] = source.Org
		}
		if source.Hosting {
			patterns[i].Details["source_hosting"] = true
		}
	}
}

func formatOrg(org string, asn uint) string {
	if asn == 0 {
		return org
	}
	return fmt.Sprintf("AS%d %s", asn, org)
}

func isDatacenterASN(asn uint) bool {
	_, ok := datacenterASNs[asn]
	return ok
}
