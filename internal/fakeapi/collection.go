package fakeapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"
)

// object is a stored resource in its JSON form.
type object = map[string]any

// collection holds the objects of one resource, keyed by their identity
// field, in insertion order.
type collection struct {
	items  map[string]object
	order  []string
	nextID int64
}

func newCollection() *collection {
	return &collection{items: make(map[string]object)}
}

func (c *collection) get(id string) (object, bool) {
	obj, ok := c.items[id]
	return obj, ok
}

func (c *collection) put(id string, obj object) {
	if _, ok := c.items[id]; !ok {
		c.order = append(c.order, id)
	}
	c.items[id] = obj
}

func (c *collection) remove(id string) bool {
	if _, ok := c.items[id]; !ok {
		return false
	}
	delete(c.items, id)
	for i, key := range c.order {
		if key == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return true
}

func (c *collection) list() []object {
	out := make([]object, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, copyObject(c.items[id]))
	}
	return out
}

// allocID returns the next numeric id of the collection.
func (c *collection) allocID() string {
	c.nextID++
	return strconv.FormatInt(c.nextID, 10)
}

// resource describes one REST collection of the fake API.
type resource struct {
	name string

	// key is the identity field of the objects, idParam the route
	// parameter carrying it on detail routes.
	key     string
	idParam string

	// autoID makes the server assign numeric ids on create.
	autoID bool

	// collection resolves the collection addressed by the route. It runs
	// with the server lock held and reports false if a parent is missing.
	collection func(s *Server, ps httprouter.Params, create bool) (*collection, bool)

	// validate checks and completes a new object. It returns field errors.
	validate func(obj object) map[string][]string

	// hooks run with the server lock held.
	afterCreate func(s *Server, ps httprouter.Params, obj object)
	afterUpdate func(s *Server, ps httprouter.Params, obj object)
	afterDelete func(s *Server, ps httprouter.Params, obj object)
}

// readOnlyFields are never changed by updates.
var readOnlyFields = map[string]bool{
	"id":         true,
	"created_at": true,
	"links":      true,
	"revision":   true,
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func (s *Server) list(res *resource) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		s.mu.Lock()
		coll, ok := res.collection(s, ps, false)
		var objects []object
		if ok {
			objects = coll.list()
		}
		s.mu.Unlock()

		if !ok {
			writeNotFound(w)
			return
		}
		writeJSON(w, http.StatusOK, paginate(r, objects))
	}
}

func (s *Server) create(res *resource) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		obj, err := decodeObject(r)
		if err != nil {
			writeDetail(w, http.StatusBadRequest, err.Error())
			return
		}
		if res.validate != nil {
			if fields := res.validate(obj); len(fields) > 0 {
				writeJSON(w, http.StatusBadRequest, fields)
				return
			}
		}

		s.mu.Lock()
		defer s.mu.Unlock()

		coll, ok := res.collection(s, ps, true)
		if !ok {
			writeNotFound(w)
			return
		}

		var id string
		if res.autoID {
			id = coll.allocID()
			obj[res.key], _ = strconv.ParseInt(id, 10, 64)
		} else {
			id, _ = obj[res.key].(string)
			if id == "" {
				writeJSON(w, http.StatusBadRequest, map[string][]string{
					res.key: {"This field must be a non-empty string."},
				})
				return
			}
			if _, exists := coll.get(id); exists {
				writeJSON(w, http.StatusBadRequest, map[string][]string{
					res.key: {res.name + " with this " + res.key + " already exists."},
				})
				return
			}
		}

		now := timestamp(s.now())
		obj["created_at"] = now
		obj["updated_at"] = now
		obj["links"] = map[string]any{"self": r.URL.Path + id + "/"}
		coll.put(id, obj)

		if res.afterCreate != nil {
			res.afterCreate(s, ps, obj)
		}
		writeJSON(w, http.StatusCreated, obj)
	}
}

func (s *Server) detail(res *resource) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		s.mu.Lock()
		obj, ok := s.lookup(res, ps)
		var out object
		if ok {
			out = copyObject(obj)
		}
		s.mu.Unlock()

		if !ok {
			writeNotFound(w)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) update(res *resource) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		changes, err := decodeObject(r)
		if err != nil {
			writeDetail(w, http.StatusBadRequest, err.Error())
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()

		obj, ok := s.lookup(res, ps)
		if !ok {
			writeNotFound(w)
			return
		}
		for k, v := range changes {
			if k == res.key || readOnlyFields[k] {
				continue
			}
			obj[k] = v
		}
		obj["updated_at"] = timestamp(s.now())
		if rev, ok := obj["revision"].(int64); ok {
			obj["revision"] = rev + 1
		}

		if res.afterUpdate != nil {
			res.afterUpdate(s, ps, obj)
		}
		writeJSON(w, http.StatusOK, copyObject(obj))
	}
}

func (s *Server) remove(res *resource) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		s.mu.Lock()
		defer s.mu.Unlock()

		coll, ok := res.collection(s, ps, false)
		if !ok {
			writeNotFound(w)
			return
		}
		id := ps.ByName(res.idParam)
		obj, ok := coll.get(id)
		if !ok {
			writeNotFound(w)
			return
		}
		coll.remove(id)

		if res.afterDelete != nil {
			res.afterDelete(s, ps, obj)
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// lookup finds the object addressed by a detail route. Callers hold s.mu.
func (s *Server) lookup(res *resource, ps httprouter.Params) (object, bool) {
	coll, ok := res.collection(s, ps, false)
	if !ok {
		return nil, false
	}
	return coll.get(ps.ByName(res.idParam))
}

func copyObject(obj object) object {
	out := make(object, len(obj))
	for k, v := range obj {
		out[k] = v
	}
	return out
}
