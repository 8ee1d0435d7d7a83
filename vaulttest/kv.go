package vaulttest

import (
	"net/http"
	"sort"
	"strings"
	"time"
)

type secretMount struct {
	typ     string
	version int
	data    map[string]*kvEntry
}

type kvEntry struct {
	versions []map[string]interface{}
	created  []time.Time
	deleted  bool
}

func (e *kvEntry) metadata() map[string]interface{} {
	return map[string]interface{}{
		"created_time":    e.created[len(e.created)-1].Format(time.RFC3339Nano),
		"custom_metadata": nil,
		"deletion_time":   "",
		"destroyed":       false,
		"version":         len(e.versions),
	}
}

// KV - current data at path of the kv mount, nil when missing or deleted
func (s *Server) KV(mount, path string) map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, found := s.mounts[mount]
	if !found || m.typ != "kv" {
		return nil
	}
	e, found := m.data[strings.Trim(path, "/")]
	if !found || e.deleted {
		return nil
	}
	return e.versions[len(e.versions)-1]
}

func (s *Server) kv(c *call, m *secretMount, rest string) reply {
	if m.version == 2 {
		switch {
		case strings.HasPrefix(rest, "data/"):
			return s.kvData(c, m, strings.TrimPrefix(rest, "data/"), true)
		case rest == "metadata" || strings.HasPrefix(rest, "metadata/"):
			return s.kvMetadata(c, m, strings.Trim(strings.TrimPrefix(rest, "metadata"), "/"))
		}
		return noRoute(c.Path)
	}

	if c.Method == "LIST" {
		return m.list(rest)
	}
	return s.kvData(c, m, rest, false)
}

func (s *Server) kvData(c *call, m *secretMount, path string, v2 bool) reply {
	e, exists := m.data[path]

	switch c.Method {
	case http.MethodGet:
		if !exists || e.deleted {
			return fail(http.StatusNotFound)
		}
		current := e.versions[len(e.versions)-1]
		if v2 {
			return ok(map[string]interface{}{"data": current, "metadata": e.metadata()})
		}
		return ok(current)

	case http.MethodPost, http.MethodPut:
		data := c.Body
		if v2 {
			inner, isMap := c.Body["data"].(map[string]interface{})
			if !isMap {
				return fail(http.StatusBadRequest, "no data provided")
			}
			data = inner
		}

		if !exists {
			e = &kvEntry{}
			m.data[path] = e
		}
		e.versions = append(e.versions, data)
		e.created = append(e.created, time.Now())
		e.deleted = false

		if v2 {
			return ok(e.metadata())
		}
		return noContent()

	case http.MethodDelete:
		if exists {
			e.deleted = true
		}
		return noContent()
	}

	return noRoute(c.Path)
}

func (s *Server) kvMetadata(c *call, m *secretMount, path string) reply {
	switch c.Method {
	case "LIST":
		return m.list(path)
	case http.MethodDelete:
		delete(m.data, path)
		return noContent()
	case http.MethodGet:
		e, found := m.data[path]
		if !found {
			return fail(http.StatusNotFound)
		}
		return ok(map[string]interface{}{
			"current_version": len(e.versions),
			"created_time":    e.created[0].Format(time.RFC3339Nano),
			"updated_time":    e.created[len(e.created)-1].Format(time.RFC3339Nano),
		})
	}
	return noRoute(c.Path)
}

// list - direct children of prefix, folders end with "/"
func (m *secretMount) list(prefix string) reply {
	prefix = strings.Trim(prefix, "/")
	if len(prefix) != 0 {
		prefix += "/"
	}

	seen := make(map[string]bool)
	var keys []string
	for path, e := range m.data {
		if !strings.HasPrefix(path, prefix) || (m.version == 1 && e.deleted) {
			continue
		}
		key := strings.TrimPrefix(path, prefix)
		if i := strings.Index(key, "/"); i >= 0 {
			key = key[:i+1]
		}
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}

	if len(keys) == 0 {
		return fail(http.StatusNotFound)
	}
	sort.Strings(keys)
	return ok(map[string]interface{}{"keys": keys})
}
