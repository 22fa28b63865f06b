package dns

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev.hon.one/netsot/common"
)

const testToken = "dns-token"

var testZones = []string{"sigtom.dev", "sigtom.info", "sigtomtech.com", "ahchto.sigtomtech.com"}

const testHostsList = `# Exported from pihole1
172.16.100.10 overseerr.sigtom.dev
172.16.100.11 sigtom.info www.sigtom.info

172.16.100.12 nas.ahchto.sigtomtech.com nas.example.org
172.16.100.13
172.16.100.14 plex172.16.100.14.sigtom.dev
172.16.100.15 172.16.100.15.sigtom.dev
`

// fakeTechnitium - Records calls and keeps zones, answering like the real API.
type fakeTechnitium struct {
	*httptest.Server

	mu      sync.Mutex
	calls   []string
	zones   map[string]string // Zone to catalog
	records map[string]string // "label zone" to IP
}

func newFakeTechnitium(t *testing.T, existingZones ...string) *fakeTechnitium {
	fake := &fakeTechnitium{
		zones:   make(map[string]string),
		records: make(map[string]string),
	}
	for _, zone := range existingZones {
		fake.zones[zone] = ""
	}
	fake.Server = httptest.NewServer(http.HandlerFunc(fake.handle))
	t.Cleanup(fake.Close)
	return fake
}

func (fake *fakeTechnitium) handle(w http.ResponseWriter, r *http.Request) {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	path := strings.TrimPrefix(r.URL.Path, "/api/")
	fake.calls = append(fake.calls, path)
	query := r.URL.Query()
	reply := func(body map[string]interface{}) {
		_ = json.NewEncoder(w).Encode(body)
	}
	if query.Get("token") != testToken {
		reply(map[string]interface{}{"status": "invalid-token", "errorMessage": "Invalid token or session expired."})
		return
	}
	zone := query.Get("zone")
	switch path {
	case "zones/list":
		var zones []map[string]interface{}
		for name := range fake.zones {
			zones = append(zones, map[string]interface{}{"name": name, "type": "Primary"})
		}
		sort.Slice(zones, func(i, j int) bool { return zones[i]["name"].(string) < zones[j]["name"].(string) })
		reply(map[string]interface{}{"status": "ok", "response": map[string]interface{}{"zones": zones}})
		return
	case "zones/create":
		if _, found := fake.zones[zone]; found {
			reply(map[string]interface{}{"status": "error", "error": map[string]string{"message": "Zone already exists: " + zone}})
			return
		}
		fake.zones[zone] = query.Get("catalog")
	case "zones/options/set":
		fake.zones[zone] = query.Get("catalog")
	case "zones/records/add":
		if _, found := fake.zones[zone]; !found {
			reply(map[string]interface{}{"status": "error", "errorMessage": "No such zone was found: " + zone})
			return
		}
		fake.records[query.Get("domain")+" "+zone] = query.Get("ipAddress")
	default:
		reply(map[string]interface{}{"status": "error", "errorMessage": "Invalid endpoint"})
		return
	}
	reply(map[string]interface{}{"status": "ok"})
}

func (fake *fakeTechnitium) calledPaths() []string {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	return append([]string(nil), fake.calls...)
}

func (fake *fakeTechnitium) catalogOf(zone string) (string, bool) {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	catalog, found := fake.zones[zone]
	return catalog, found
}

func (fake *fakeTechnitium) recordIP(label string, zone string) string {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	return fake.records[label+" "+zone]
}

func newTestClient(t *testing.T, apiURL string, token string, dryRun bool) *Client {
	t.Helper()
	client, err := NewClient(common.DNSConfig{APIURL: apiURL, Token: token}, dryRun)
	require.NoError(t, err)
	return client
}

func TestParseHostsList(t *testing.T) {
	entries, err := ParseHostsList(strings.NewReader(testHostsList))

	require.NoError(t, err)
	require.Len(t, entries, 5)
	assert.Equal(t, HostsEntry{IP: "172.16.100.11", Names: []string{"sigtom.info", "www.sigtom.info"}}, entries[1])
	assert.Equal(t, "172.16.100.14", entries[3].IP)
}

func TestSplitDomain(t *testing.T) {
	tests := []struct {
		name  string
		zone  string
		label string
		ok    bool
	}{
		{"overseerr.sigtom.dev", "sigtom.dev", "overseerr", true},
		{"sigtom.info", "sigtom.info", "@", true},
		{"nas.ahchto.sigtomtech.com", "ahchto.sigtomtech.com", "nas", true},
		{"web.sigtomtech.com", "sigtomtech.com", "web", true},
		{"a.b.sigtom.dev", "sigtom.dev", "a.b", true},
		{"web1.lab.sigtom.dev", "sigtom.dev", "web1.lab", true},
		{"plex172.16.100.14.sigtom.dev", "sigtom.dev", "plex", true},
		{"172.16.100.15.sigtom.dev", "sigtom.dev", "", false},
		{"notsigtom.dev", "", "", false},
		{"nas.example.org", "", "", false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			zone, label, ok := SplitDomain(test.name, testZones)
			assert.Equal(t, test.ok, ok)
			if test.ok {
				assert.Equal(t, test.zone, zone)
				assert.Equal(t, test.label, label)
			}
		})
	}
}

func TestPlanRecords(t *testing.T) {
	entries, err := ParseHostsList(strings.NewReader(testHostsList))
	require.NoError(t, err)

	records, skipped := PlanRecords(entries, testZones)

	assert.Equal(t, []Record{
		{Zone: "sigtom.dev", Label: "overseerr", IP: "172.16.100.10", Name: "overseerr.sigtom.dev"},
		{Zone: "sigtom.info", Label: "@", IP: "172.16.100.11", Name: "sigtom.info"},
		{Zone: "sigtom.info", Label: "www", IP: "172.16.100.11", Name: "www.sigtom.info"},
		{Zone: "ahchto.sigtomtech.com", Label: "nas", IP: "172.16.100.12", Name: "nas.ahchto.sigtomtech.com"},
		{Zone: "sigtom.dev", Label: "plex", IP: "172.16.100.14", Name: "plex172.16.100.14.sigtom.dev"},
	}, records)
	assert.Equal(t, []string{"nas.example.org", "172.16.100.15.sigtom.dev"}, skipped)
}

func TestEnsureZone(t *testing.T) {
	fake := newFakeTechnitium(t, "sigtom.info")
	client := newTestClient(t, fake.URL+"/api", testToken, false)
	ctx := context.Background()

	created, err := client.EnsureZone(ctx, "sigtom.dev", "cluster-catalog.sigtom.dev")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = client.EnsureZone(ctx, "sigtom.info", "cluster-catalog.sigtom.dev")
	require.NoError(t, err)
	assert.False(t, created)

	assert.Equal(t, []string{"zones/list", "zones/create", "zones/options/set"}, fake.calledPaths())
	catalog, _ := fake.catalogOf("sigtom.info")
	assert.Equal(t, "cluster-catalog.sigtom.dev", catalog)
}

func TestClient_InvalidToken(t *testing.T) {
	fake := newFakeTechnitium(t)
	client := newTestClient(t, fake.URL+"/api", "wrong", false)

	_, err := client.EnsureZone(context.Background(), "sigtom.dev", "")

	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewClient_MissingToken(t *testing.T) {
	_, err := NewClient(common.DNSConfig{APIURL: "http://dns1:5380/api"}, false)
	assert.ErrorIs(t, err, common.ErrMissingCredential)
}

func TestImport(t *testing.T) {
	fake := newFakeTechnitium(t, "sigtom.info")
	client := newTestClient(t, fake.URL+"/api", testToken, false)
	entries, err := ParseHostsList(strings.NewReader(testHostsList))
	require.NoError(t, err)

	report, err := NewImporter(client, testZones, "cluster-catalog.sigtom.dev").Import(context.Background(), entries)

	require.NoError(t, err)
	assert.Equal(t, 4, report.Zones)
	assert.Equal(t, 5, report.Records)
	assert.Equal(t, common.Tally{Created: 8, Updated: 1, Skipped: 2}, report.Tally)
	assert.Equal(t, "172.16.100.11", fake.recordIP("@", "sigtom.info"))
	assert.Equal(t, "172.16.100.12", fake.recordIP("nas", "ahchto.sigtomtech.com"))
	_, found := fake.catalogOf("sigtomtech.com")
	assert.True(t, found)
}

func TestImport_DryRun(t *testing.T) {
	fake := newFakeTechnitium(t)
	client := newTestClient(t, fake.URL+"/api", testToken, true)
	entries, err := ParseHostsList(strings.NewReader(testHostsList))
	require.NoError(t, err)

	report, err := NewImporter(client, testZones, "").Import(context.Background(), entries)

	require.NoError(t, err)
	assert.Equal(t, 5, report.Records)
	assert.Equal(t, []string{"zones/list"}, fake.calledPaths())
}

func TestImport_DryRunMatchesCommit(t *testing.T) {
	entries, err := ParseHostsList(strings.NewReader(testHostsList))
	require.NoError(t, err)
	run := func(dryRun bool) (Report, *fakeTechnitium) {
		fake := newFakeTechnitium(t, "sigtom.info", "sigtomtech.com")
		client := newTestClient(t, fake.URL+"/api", testToken, dryRun)
		report, err := NewImporter(client, testZones, "cluster-catalog.sigtom.dev").Import(context.Background(), entries)
		require.NoError(t, err)
		return report, fake
	}

	commit, _ := run(false)
	dry, fake := run(true)

	assert.Equal(t, common.Tally{Created: 7, Updated: 2, Skipped: 2}, commit.Tally)
	assert.Equal(t, commit, dry)
	assert.Equal(t, []string{"zones/list"}, fake.calledPaths())
	_, found := fake.catalogOf("sigtom.dev")
	assert.False(t, found)
}
