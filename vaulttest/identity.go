package vaulttest

import (
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

type entity struct {
	id       string
	name     string
	policies []string
	metadata map[string]string
	disabled bool
	created  time.Time
	updated  time.Time
}

type alias struct {
	id            string
	name          string
	canonicalID   string
	mountAccessor string
	mountType     string
	customMeta    map[string]string
}

func (a *alias) read() map[string]interface{} {
	return map[string]interface{}{
		"id":              a.id,
		"name":            a.name,
		"canonical_id":    a.canonicalID,
		"mount_accessor":  a.mountAccessor,
		"mount_type":      a.mountType,
		"custom_metadata": a.customMeta,
	}
}

func (s *Server) identity(c *call) reply {
	rest := strings.TrimPrefix(c.Path, "identity/")

	switch {
	case rest == "entity/name" && c.Method == "LIST":
		var names []string
		for _, e := range s.entities {
			names = append(names, e.name)
		}
		if len(names) == 0 {
			return fail(http.StatusNotFound)
		}
		sort.Strings(names)
		return ok(map[string]interface{}{"keys": names})

	case strings.HasPrefix(rest, "entity/name/"):
		return s.entityByName(c, strings.TrimPrefix(rest, "entity/name/"))

	case strings.HasPrefix(rest, "entity/id/"):
		e, found := s.entities[strings.TrimPrefix(rest, "entity/id/")]
		if !found {
			return fail(http.StatusNotFound)
		}
		switch c.Method {
		case http.MethodGet:
			return ok(s.readEntity(e))
		case http.MethodPost, http.MethodPut:
			if name := stringValue(c.Body, "name"); len(name) != 0 {
				e.name = name
			}
			e.apply(c.Body)
			return noContent()
		}

	case rest == "entity-alias":
		return s.createAlias(c)

	case rest == "entity-alias/id" && c.Method == "LIST":
		var ids []string
		info := make(map[string]interface{})
		for id, a := range s.aliases {
			ids = append(ids, id)
			info[id] = map[string]interface{}{"name": a.name, "canonical_id": a.canonicalID, "mount_accessor": a.mountAccessor}
		}
		if len(ids) == 0 {
			return fail(http.StatusNotFound)
		}
		sort.Strings(ids)
		return ok(map[string]interface{}{"keys": ids, "key_info": info})

	case strings.HasPrefix(rest, "entity-alias/id/"):
		id := strings.TrimPrefix(rest, "entity-alias/id/")
		a, found := s.aliases[id]
		switch c.Method {
		case http.MethodGet:
			if !found {
				return fail(http.StatusNotFound)
			}
			return ok(a.read())
		case http.MethodPost, http.MethodPut:
			if !found {
				return fail(http.StatusNotFound)
			}
			return s.updateAlias(c, a)
		case http.MethodDelete:
			delete(s.aliases, id)
			return noContent()
		}
	}

	return noRoute(c.Path)
}

// Entity - the entity named name as the server stores it, nil when missing
func (s *Server) Entity(name string) map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entities {
		if e.name == name {
			return s.readEntity(e)
		}
	}
	return nil
}

func (s *Server) entityByName(c *call, name string) reply {
	var current *entity
	for _, e := range s.entities {
		if e.name == name {
			current = e
			break
		}
	}

	switch c.Method {
	case http.MethodGet:
		if nil == current {
			return fail(http.StatusNotFound)
		}
		return ok(s.readEntity(current))

	case http.MethodPost, http.MethodPut:
		created := nil == current
		if created {
			current = &entity{id: uuid.NewString(), name: name, created: time.Now().UTC()}
			s.entities[current.id] = current
		}

		current.apply(c.Body)

		if !created {
			return noContent()
		}
		return ok(map[string]interface{}{"id": current.id, "name": current.name, "aliases": nil})

	case http.MethodDelete:
		if nil != current {
			delete(s.entities, current.id)
		}
		return noContent()
	}

	return noRoute(c.Path)
}

// apply - fields missing from the body keep their value
func (e *entity) apply(body map[string]interface{}) {
	if _, set := body["policies"]; set {
		e.policies = stringsValue(body, "policies")
	}
	if _, set := body["metadata"]; set {
		e.metadata = stringMap(body, "metadata")
	}
	e.disabled = boolValue(body, "disabled", e.disabled)
	e.updated = time.Now().UTC()
}

func (s *Server) updateAlias(c *call, a *alias) reply {
	if canonicalID := stringValue(c.Body, "canonical_id"); len(canonicalID) != 0 {
		if _, found := s.entities[canonicalID]; !found {
			return fail(http.StatusBadRequest, "entity id \""+canonicalID+"\" does not exist")
		}
		a.canonicalID = canonicalID
	}
	if accessor := stringValue(c.Body, "mount_accessor"); len(accessor) != 0 {
		mountType := s.mountType(accessor)
		if len(mountType) == 0 {
			return fail(http.StatusBadRequest, "invalid mount accessor \""+accessor+"\"")
		}
		a.mountAccessor, a.mountType = accessor, mountType
	}
	if name := stringValue(c.Body, "name"); len(name) != 0 {
		a.name = name
	}
	if _, set := c.Body["custom_metadata"]; set {
		a.customMeta = stringMap(c.Body, "custom_metadata")
	}

	return ok(map[string]interface{}{"id": a.id, "canonical_id": a.canonicalID})
}

func (s *Server) mountType(accessor string) string {
	for _, m := range s.auths {
		if m.accessor == accessor {
			return m.typ
		}
	}
	return ""
}

func (s *Server) createAlias(c *call) reply {
	if c.Method != http.MethodPost && c.Method != http.MethodPut {
		return noRoute(c.Path)
	}

	name := stringValue(c.Body, "name")
	canonicalID := stringValue(c.Body, "canonical_id")
	accessor := stringValue(c.Body, "mount_accessor")

	if len(name) == 0 || len(accessor) == 0 {
		return fail(http.StatusBadRequest, "missing name or mount_accessor")
	}
	if _, found := s.entities[canonicalID]; !found {
		return fail(http.StatusBadRequest, "entity id \""+canonicalID+"\" does not exist")
	}

	mountType := s.mountType(accessor)
	if len(mountType) == 0 {
		return fail(http.StatusBadRequest, "invalid mount accessor \""+accessor+"\"")
	}

	a := &alias{
		id:            uuid.NewString(),
		name:          name,
		canonicalID:   canonicalID,
		mountAccessor: accessor,
		mountType:     mountType,
		customMeta:    stringMap(c.Body, "custom_metadata"),
	}
	s.aliases[a.id] = a

	return ok(map[string]interface{}{"id": a.id, "canonical_id": a.canonicalID})
}

func (s *Server) readEntity(e *entity) map[string]interface{} {
	aliases := []interface{}{}
	for _, a := range s.aliases {
		if a.canonicalID == e.id {
			aliases = append(aliases, a.read())
		}
	}

	policies := e.policies
	if nil == policies {
		policies = []string{}
	}

	return map[string]interface{}{
		"id":                  e.id,
		"name":                e.name,
		"policies":            policies,
		"metadata":            e.metadata,
		"disabled":            e.disabled,
		"aliases":             aliases,
		"creation_time":       e.created.Format(time.RFC3339Nano),
		"last_update_time":    e.updated.Format(time.RFC3339Nano),
		"merged_entity_ids":   nil,
		"namespace_id":        "root",
		"direct_group_ids":    []string{},
		"inherited_group_ids": []string{},
	}
}
