// Package nautobottest provides an in-memory inventory API server for tests.
package nautobottest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// Token - API token accepted by the server.
const Token = "test-token"

// Object - A stored object.
type Object = map[string]interface{}

// Fields holding references to other objects, stored in nested form.
var refFields = map[string]bool{
	"status":          true,
	"parent":          true,
	"device":          true,
	"interface":       true,
	"vm_interface":    true,
	"ip_address":      true,
	"cluster":         true,
	"cluster_type":    true,
	"virtual_machine": true,
	"cable":           true,
}

// Server - Fake inventory API. Supports filtered paginated lists, POST and PATCH.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	objects  map[string][]Object
	nextID   int
	writes   int
	requests int
	failWith int
}

// NewServer - Start a server, closed when the test ends.
func NewServer(t testing.TB) *Server {
	server := &Server{objects: make(map[string][]Object)}
	server.Server = httptest.NewServer(http.HandlerFunc(server.handle))
	t.Cleanup(server.Close)
	return server
}

// APIURL - API root for clients.
func (server *Server) APIURL() string {
	return server.Server.URL + "/api"
}

// FailWith - Respond to every request with this status. Zero disables.
func (server *Server) FailWith(status int) {
	server.mu.Lock()
	defer server.mu.Unlock()
	server.failWith = status
}

// Writes - Number of mutating requests received.
func (server *Server) Writes() int {
	server.mu.Lock()
	defer server.mu.Unlock()
	return server.writes
}

// Requests - Number of requests received.
func (server *Server) Requests() int {
	server.mu.Lock()
	defer server.mu.Unlock()
	return server.requests
}

// Snapshot - All stored objects, serialized deterministically.
func (server *Server) Snapshot() []byte {
	server.mu.Lock()
	defer server.mu.Unlock()
	data, err := json.Marshal(server.objects)
	if err != nil {
		panic(err)
	}
	return data
}

// Objects - Copy of the objects stored for an endpoint (e.g. "ipam/ip-addresses").
func (server *Server) Objects(endpoint string) []Object {
	server.mu.Lock()
	defer server.mu.Unlock()
	var result []Object
	for _, object := range server.objects[strings.Trim(endpoint, "/")] {
		result = append(result, copyObject(object))
	}
	return result
}

// Add - Store an object directly and return its ID.
func (server *Server) Add(endpoint string, object Object) string {
	server.mu.Lock()
	defer server.mu.Unlock()
	return server.insert(strings.Trim(endpoint, "/"), object)
}

// AddStatus - Seed a status.
func (server *Server) AddStatus(name string) string {
	return server.Add("extras/statuses", Object{"name": name})
}

// AddPrefix - Seed a prefix.
func (server *Server) AddPrefix(prefix string) string {
	return server.Add("ipam/prefixes", Object{"prefix": prefix})
}

// AddDevice - Seed a device.
func (server *Server) AddDevice(name string) string {
	return server.Add("dcim/devices", Object{"name": name})
}

// AddInterface - Seed a device interface.
func (server *Server) AddInterface(deviceID string, name string) string {
	return server.Add("dcim/interfaces", Object{"device": deviceID, "name": name})
}

// AddIPAddress - Seed an address.
func (server *Server) AddIPAddress(address string) string {
	return server.Add("ipam/ip-addresses", Object{"address": address})
}

// AddLink - Seed an address to interface assignment.
func (server *Server) AddLink(ipAddressID string, interfaceID string) string {
	return server.Add("ipam/ip-address-to-interface", Object{"ip_address": ipAddressID, "interface": interfaceID})
}

func (server *Server) insert(endpoint string, object Object) string {
	server.nextID++
	stored := normalize(object)
	id := fmt.Sprintf("00000000-0000-4000-8000-%012d", server.nextID)
	stored["id"] = id
	server.objects[endpoint] = append(server.objects[endpoint], stored)
	return id
}

func (server *Server) find(endpoint string, id string) Object {
	for _, object := range server.objects[endpoint] {
		if object["id"] == id {
			return object
		}
	}
	return nil
}

func (server *Server) handle(w http.ResponseWriter, r *http.Request) {
	server.mu.Lock()
	defer server.mu.Unlock()
	server.requests++

	if server.failWith != 0 {
		writeJSON(w, server.failWith, Object{"detail": http.StatusText(server.failWith)})
		return
	}
	if r.Header.Get("Authorization") != "Token "+Token {
		writeJSON(w, http.StatusForbidden, Object{"detail": "Invalid token."})
		return
	}
	if r.Method != http.MethodGet {
		server.writes++
	}

	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/"), "/")
	if path == "status" {
		writeJSON(w, http.StatusOK, Object{"nautobot-version": "2.1.0"})
		return
	}
	parts := strings.Split(path, "/")
	if len(parts) < 2 || len(parts) > 3 {
		writeJSON(w, http.StatusNotFound, Object{"detail": "Not found."})
		return
	}
	endpoint := parts[0] + "/" + parts[1]

	if len(parts) == 3 {
		object := server.find(endpoint, parts[2])
		if object == nil {
			writeJSON(w, http.StatusNotFound, Object{"detail": "Not found."})
			return
		}
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, object)
		case http.MethodPatch:
			var patch Object
			if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
				writeJSON(w, http.StatusBadRequest, Object{"detail": err.Error()})
				return
			}
			for key, value := range normalize(patch) {
				if key != "id" {
					object[key] = value
				}
			}
			writeJSON(w, http.StatusOK, object)
		default:
			writeJSON(w, http.StatusMethodNotAllowed, Object{"detail": "Method not allowed."})
		}
		return
	}

	switch r.Method {
	case http.MethodGet:
		server.list(w, r, endpoint)
	case http.MethodPost:
		var object Object
		if err := json.NewDecoder(r.Body).Decode(&object); err != nil {
			writeJSON(w, http.StatusBadRequest, Object{"detail": err.Error()})
			return
		}
		id := server.insert(endpoint, object)
		if endpoint == "dcim/cables" {
			for _, key := range []string{"termination_a_id", "termination_b_id"} {
				if termination := server.find("dcim/interfaces", fmt.Sprint(object[key])); termination != nil {
					termination["cable"] = Object{"id": id}
				}
			}
		}
		writeJSON(w, http.StatusCreated, server.find(endpoint, id))
	default:
		writeJSON(w, http.StatusMethodNotAllowed, Object{"detail": "Method not allowed."})
	}
}

func (server *Server) list(w http.ResponseWriter, r *http.Request, endpoint string) {
	query := r.URL.Query()
	limit, err := strconv.Atoi(query.Get("limit"))
	if err != nil || limit <= 0 {
		limit = 50
	}
	offset, _ := strconv.Atoi(query.Get("offset"))

	var matches []Object
	for _, object := range server.objects[endpoint] {
		if matchesQuery(object, query) {
			matches = append(matches, object)
		}
	}

	page := []Object{}
	if offset < len(matches) {
		end := offset + limit
		if end > len(matches) {
			end = len(matches)
		}
		page = matches[offset:end]
	}

	var next, previous interface{}
	if offset+limit < len(matches) {
		next = server.pageURL(r, query, offset+limit)
	}
	if offset > 0 {
		previous = server.pageURL(r, query, max(offset-limit, 0))
	}
	writeJSON(w, http.StatusOK, Object{
		"count":    len(matches),
		"next":     next,
		"previous": previous,
		"results":  page,
	})
}

func (server *Server) pageURL(r *http.Request, query url.Values, offset int) string {
	pageQuery := url.Values{}
	for key, values := range query {
		pageQuery[key] = values
	}
	pageQuery.Set("offset", strconv.Itoa(offset))
	return server.Server.URL + r.URL.Path + "?" + pageQuery.Encode()
}

func matchesQuery(object Object, query url.Values) bool {
	for key, values := range query {
		switch key {
		case "limit", "offset", "depth", "content_types":
			continue
		}
		field := strings.TrimSuffix(key, "_id")
		value, ok := object[field]
		if !ok {
			return false
		}
		actual := fmt.Sprint(value)
		if nested, ok := value.(Object); ok {
			actual = fmt.Sprint(nested["id"])
		}
		if field == "address" {
			actual = strings.SplitN(actual, "/", 2)[0]
		}
		if actual != values[0] {
			return false
		}
	}
	return true
}

func normalize(object Object) Object {
	result := make(Object, len(object))
	for key, value := range object {
		switch {
		case refFields[key]:
			if id, ok := value.(string); ok {
				value = Object{"id": id}
			}
		case key == "tags":
			if list, ok := value.([]interface{}); ok {
				refs := make([]interface{}, 0, len(list))
				for _, item := range list {
					if id, ok := item.(string); ok {
						refs = append(refs, Object{"id": id})
					} else {
						refs = append(refs, item)
					}
				}
				value = refs
			}
			if list, ok := value.([]string); ok {
				refs := make([]interface{}, 0, len(list))
				for _, id := range list {
					refs = append(refs, Object{"id": id})
				}
				value = refs
			}
		}
		result[key] = value
	}
	return result
}

func copyObject(object Object) Object {
	data, _ := json.Marshal(object)
	var result Object
	_ = json.Unmarshal(data, &result)
	return result
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
