package db

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev.hon.one/netsot/common"
)

type fakeInfluxDB struct {
	*httptest.Server

	mu     sync.Mutex
	lines  []string
	params []string
}

func newFakeInfluxDB(t *testing.T) *fakeInfluxDB {
	fake := &fakeInfluxDB{}
	fake.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"name":"influxdb","message":"ready for queries and writes","status":"pass","checks":[],"version":"2.7.1"}`)
		case "/api/v2/write":
			body, _ := io.ReadAll(r.Body)
			fake.mu.Lock()
			fake.params = append(fake.params, r.URL.Query().Get("org")+"/"+r.URL.Query().Get("bucket"))
			for _, line := range strings.Split(strings.TrimSpace(string(body)), "\n") {
				fake.lines = append(fake.lines, line)
			}
			fake.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(fake.Close)
	return fake
}

func (fake *fakeInfluxDB) written() ([]string, []string) {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	return append([]string(nil), fake.lines...), append([]string(nil), fake.params...)
}

func newTestWriter(t *testing.T, url string) *Writer {
	t.Helper()
	writer, err := NewWriter(context.Background(), common.InfluxDBConfig{
		URL:    url,
		Token:  "influx-token",
		Org:    "homelab",
		Bucket: common.AppName,
	})
	require.NoError(t, err)
	t.Cleanup(writer.Close)
	return writer
}

func TestNewWriter_MissingToken(t *testing.T) {
	_, err := NewWriter(context.Background(), common.InfluxDBConfig{URL: "http://localhost:8086"})
	assert.ErrorIs(t, err, common.ErrMissingCredential)
}

func TestStoreRunEntry(t *testing.T) {
	fake := newFakeInfluxDB(t)
	writer := newTestWriter(t, fake.URL)

	err := writer.StoreRunEntry(context.Background(), common.RunEntry{
		Time:     time.Unix(1700000000, 0),
		Command:  "discover",
		DryRun:   true,
		Duration: 1500 * time.Millisecond,
		Tally:    common.Tally{Created: 3, Failed: 1},
	})

	require.NoError(t, err)
	lines, params := fake.written()
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], "run,command=discover,dry_run=true "))
	assert.Contains(t, lines[0], "created=3i")
	assert.Contains(t, lines[0], "failed=1i")
	assert.Contains(t, lines[0], "duration_seconds=1.5")
	assert.True(t, strings.HasSuffix(lines[0], " 1700000000000000000"))
	assert.Equal(t, []string{"homelab/" + common.AppName}, params)
}

func TestStoreScrapeEntriesAndHosts(t *testing.T) {
	fake := newFakeInfluxDB(t)
	writer := newTestWriter(t, fake.URL)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, writer.StoreScrapeEntries(ctx, []common.ScrapeEntry{
		{Time: now, Source: "pfsense", Duration: time.Second, Success: true, Records: 12},
		{Time: now, Source: "cisco", Duration: 2 * time.Second, Success: false},
	}))
	require.NoError(t, writer.StoreDiscoveredHosts(ctx, now, []common.DiscoveredHost{
		{MAC: "AA:BB:CC:DD:EE:FF", IP: "172.16.100.55", Hostname: "testhost", Source: common.SourceLeaseTable, Kind: common.HostKindDHCPClient,
			Port: &common.SwitchPortEntry{Switch: "cisco", PortName: "Gi1/0/5"}},
	}))
	require.NoError(t, writer.StoreDiscoveredHosts(ctx, now, nil))

	lines, _ := fake.written()
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "scrape,source=pfsense ")
	assert.Contains(t, lines[0], "records=12i")
	assert.Contains(t, lines[1], "success=false")
	assert.Contains(t, lines[2], `switch_port="Gi1/0/5"`)
	assert.Contains(t, lines[2], `mac_address="AA:BB:CC:DD:EE:FF"`)
}

func TestNewWriter_Unreachable(t *testing.T) {
	fake := newFakeInfluxDB(t)
	url := fake.URL
	fake.Close()

	_, err := NewWriter(context.Background(), common.InfluxDBConfig{URL: url, Token: "influx-token"})
	assert.Error(t, err)
}
