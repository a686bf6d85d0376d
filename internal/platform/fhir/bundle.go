package fhir

import (
	"encoding/json"
	"strings"
)

// Bundle represents a FHIR Bundle resource.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	ID           string        `json:"id,omitempty"`
	Type         string        `json:"type"`
	Timestamp    string        `json:"timestamp,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
}

type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
}

// entry is one bundle entry with its resource header decoded.
type entry struct {
	fullURL  string
	resource Resource
	raw      json.RawMessage
}

// fragment identifies the entry in logs and provenance: Type/id when the
// resource has an id, otherwise its fullUrl.
func (e entry) fragment() string {
	if e.resource.ID != "" {
		return FormatReference(e.resource.ResourceType, e.resource.ID)
	}
	return e.fullURL
}

// bundleIndex resolves references between entries of one bundle. It is
// built per document and discarded with it.
type bundleIndex struct {
	entries []entry
	byRef   map[string]int
}

func indexBundle(b *Bundle) *bundleIndex {
	idx := &bundleIndex{byRef: make(map[string]int, len(b.Entry)*2)}
	for _, be := range b.Entry {
		if len(be.Resource) == 0 {
			continue
		}
		fields := rawFields(be.Resource)
		var hdr Resource
		field(fields, "resourceType", &hdr.ResourceType)
		field(fields, "id", &hdr.ID)
		if hdr.ResourceType == "" {
			continue
		}
		e := entry{fullURL: be.FullURL, resource: hdr, raw: be.Resource}
		idx.entries = append(idx.entries, e)
		pos := len(idx.entries) - 1
		if hdr.ID != "" {
			idx.byRef[FormatReference(hdr.ResourceType, hdr.ID)] = pos
		}
		if be.FullURL != "" {
			idx.byRef[be.FullURL] = pos
		}
	}
	return idx
}

// resolve finds the entry a reference points at. Relative references
// ("Medication/med-1"), absolute URLs ending in Type/id, and urn:uuid
// fullUrls are supported. Contained ("#id") references are not.
func (idx *bundleIndex) resolve(ref *Reference) (entry, bool) {
	if ref == nil || ref.Reference == "" {
		return entry{}, false
	}
	r := ref.Reference
	if pos, ok := idx.byRef[r]; ok {
		return idx.entries[pos], true
	}
	// http://server/fhir/Medication/med-1 -> Medication/med-1
	parts := strings.Split(strings.TrimSuffix(r, "/"), "/")
	if len(parts) >= 2 {
		if pos, ok := idx.byRef[parts[len(parts)-2]+"/"+parts[len(parts)-1]]; ok {
			return idx.entries[pos], true
		}
	}
	return entry{}, false
}

// ofType returns the entries with the given resourceType, in bundle order.
func (idx *bundleIndex) ofType(resourceType string) []entry {
	var out []entry
	for _, e := range idx.entries {
		if e.resource.ResourceType == resourceType {
			out = append(out, e)
		}
	}
	return out
}

// FormatReference creates a FHIR reference string.
func FormatReference(resourceType, id string) string {
	return resourceType + "/" + id
}

// rawFields splits a resource into its top-level members. Anything that is
// not a JSON object yields no members.
func rawFields(raw json.RawMessage) map[string]json.RawMessage {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil
	}
	return fields
}

// field decodes one member into dst. An absent member leaves dst untouched
// and reports true; a malformed one leaves it untouched and reports false.
func field[T any](fields map[string]json.RawMessage, name string, dst *T) bool {
	raw, ok := fields[name]
	if !ok {
		return true
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	*dst = v
	return true
}
