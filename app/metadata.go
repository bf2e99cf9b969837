package app

import (
	"encoding/json"

	registry "github.com/cratery/registry"
)

// marshalMetadata re-serializes the parsed publish metadata for storage as
// the crate's metadata JSON blob, per spec §4.5.
func marshalMetadata(meta *registry.UploadMetadata) ([]byte, error) {
	return json.Marshal(meta)
}

// buildIndexRecord constructs the IndexRecord a publish appends to the
// Index, per spec §3's on-disk schema.
func buildIndexRecord(meta *registry.UploadMetadata, checksum string) registry.IndexRecord {
	deps := make([]registry.IndexDependency, 0, len(meta.Deps))
	for _, d := range meta.Deps {
		deps = append(deps, registry.IndexDependency{
			Name:            d.Name,
			Req:             d.VersionReq,
			Features:        d.Features,
			Optional:        d.Optional,
			DefaultFeatures: d.DefaultFeatures,
			Target:          d.Target,
			Kind:            d.Kind,
			Registry:        d.Registry,
			Package:         d.ExplicitNameInToml,
		})
	}
	var links *string
	if meta.Links != "" {
		links = &meta.Links
	}
	var rustVersion *string
	if meta.RustVersion != "" {
		rustVersion = &meta.RustVersion
	}
	return registry.IndexRecord{
		Name:        meta.Name,
		Vers:        meta.Vers,
		Deps:        deps,
		Cksum:       checksum,
		Features:    meta.Features,
		Yanked:      false,
		Links:       links,
		RustVersion: rustVersion,
	}
}
