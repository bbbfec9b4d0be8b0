package resolver

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/miekg/dns"
	"github.com/sourcegraph/conc"
)

const (
	noteInconsistent = "DNS propagation inconsistency detected across resolvers"
	noteNoA          = "No A records found - domain may not be properly configured"
)

// LookupTypes are the record types queried by Lookup
var LookupTypes = []uint16{
	dns.TypeA,
	dns.TypeAAAA,
	dns.TypeCNAME,
	dns.TypeMX,
	dns.TypeTXT,
	dns.TypeNS,
	dns.TypeSOA,
	dns.TypeSRV,
}

// RecordSet is the merged answer for one record type across all servers
type RecordSet struct {
	Type      string              `json:"type"`
	Records   []string            `json:"records"`
	Notes     []string            `json:"notes,omitempty"`
	Resolvers map[string][]string `json:"resolvers,omitempty"`
}

// LookupReport is the result of a cross-validated record lookup
type LookupReport struct {
	Domain        string      `json:"domain"`
	Results       []RecordSet `json:"dnsResults"`
	SecurityNotes []string    `json:"securityNotes"`
	Timestamp     time.Time   `json:"timestamp"`
}

// Lookup queries every record type against every configured server in
// parallel and compares the answers. Servers that fail or return nothing are
// left out of the comparison.
func (r *DNSResolver) Lookup(ctx context.Context, domain string) *LookupReport {
	report := &LookupReport{
		Domain:    domain,
		Results:   make([]RecordSet, len(LookupTypes)),
		Timestamp: time.Now().UTC(),
	}

	var wg conc.WaitGroup
	for i, qtype := range LookupTypes {
		wg.Go(func() {
			report.Results[i] = r.lookupType(ctx, domain, qtype)
		})
	}
	wg.Wait()

	report.SecurityNotes = securityNotes(report.Results)
	return report
}

func (r *DNSResolver) lookupType(ctx context.Context, domain string, qtype uint16) RecordSet {
	set := RecordSet{
		Type:      dns.TypeToString[qtype],
		Records:   []string{},
		Resolvers: make(map[string][]string),
	}

	var (
		mu sync.Mutex
		wg conc.WaitGroup
	)
	for _, server := range r.servers {
		wg.Go(func() {
			resp, err := r.Query(ctx, server, domain, qtype)
			if err != nil || resp.Rcode != dns.RcodeSuccess {
				return
			}
			records := recordValues(resp.Answer, qtype)
			if len(records) == 0 {
				return
			}
			slices.Sort(records)

			mu.Lock()
			set.Resolvers[server.Name] = records
			mu.Unlock()
		})
	}
	wg.Wait()

	seen := make(map[string]bool)
	var first []string
	inconsistent := false
	for _, server := range r.servers {
		records, ok := set.Resolvers[server.Name]
		if !ok {
			continue
		}
		if first == nil {
			first = records
		} else if !slices.Equal(first, records) {
			inconsistent = true
		}
		for _, rec := range records {
			if !seen[rec] {
				seen[rec] = true
				set.Records = append(set.Records, rec)
			}
		}
	}

	if inconsistent {
		set.Notes = append(set.Notes, noteInconsistent)
	}
	if len(set.Records) == 0 && qtype == dns.TypeA {
		set.Notes = append(set.Notes, noteNoA)
	}
	return set
}

// recordValues renders the answers of the requested type as strings
func recordValues(answer []dns.RR, qtype uint16) []string {
	var out []string
	for _, rr := range answer {
		if rr.Header().Rrtype != qtype {
			continue
		}
		switch v := rr.(type) {
		case *dns.A:
			out = append(out, v.A.String())
		case *dns.AAAA:
			out = append(out, v.AAAA.String())
		case *dns.CNAME:
			out = append(out, strings.TrimSuffix(v.Target, "."))
		case *dns.MX:
			out = append(out, fmt.Sprintf("%d %s", v.Preference, strings.TrimSuffix(v.Mx, ".")))
		case *dns.TXT:
			out = append(out, strings.Join(v.Txt, ""))
		case *dns.NS:
			out = append(out, strings.TrimSuffix(v.Ns, "."))
		case *dns.SOA:
			out = append(out, fmt.Sprintf("%s %s %d", strings.TrimSuffix(v.Ns, "."), strings.TrimSuffix(v.Mbox, "."), v.Serial))
		case *dns.SRV:
			out = append(out, fmt.Sprintf("%d %d %d %s", v.Priority, v.Weight, v.Port, strings.TrimSuffix(v.Target, ".")))
		default:
			out = append(out, rr.String())
		}
	}
	return out
}

func securityNotes(results []RecordSet) []string {
	notes := []string{}
	var txt []string
	for _, set := range results {
		if set.Type == "TXT" {
			txt = set.Records
		}
	}

	hasSPF := slices.ContainsFunc(txt, func(s string) bool { return strings.Contains(s, "v=spf1") })
	hasDMARC := slices.ContainsFunc(txt, func(s string) bool { return strings.Contains(s, "v=DMARC1") })

	if !hasSPF {
		notes = append(notes, "Missing SPF record - email spoofing risk")
	}
	if !hasDMARC {
		notes = append(notes, "Missing DMARC record - email security risk")
	}
	return notes
}
