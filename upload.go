package registry

// UploadMetadata is the JSON metadata segment of a publish request body,
// per spec §4.5/§4.1's publish_crate_version. Field names match the Cargo
// registry API's publish metadata shape.
type UploadMetadata struct {
	Name            string              `json:"name"`
	Vers            string              `json:"vers"`
	Deps            []UploadDependency  `json:"deps"`
	Features        map[string][]string `json:"features"`
	Authors         []string            `json:"authors"`
	Description     string              `json:"description"`
	Documentation   string              `json:"documentation"`
	Homepage        string              `json:"homepage"`
	ReadmeFile      string              `json:"readme_file"`
	Keywords        []string            `json:"keywords"`
	Categories      []string            `json:"categories"`
	License         string              `json:"license"`
	LicenseFile     string              `json:"license_file"`
	Repository      string              `json:"repository"`
	Links           string              `json:"links"`
	RustVersion     string              `json:"rust_version"`
}

// UploadDependency is one dependency entry in an UploadMetadata payload.
type UploadDependency struct {
	Name            string   `json:"name"`
	VersionReq      string   `json:"version_req"`
	Features        []string `json:"features"`
	Optional        bool     `json:"optional"`
	DefaultFeatures bool     `json:"default_features"`
	Target          *string  `json:"target"`
	Kind            string   `json:"kind"`
	Registry        *string  `json:"registry"`
	ExplicitNameInToml *string `json:"explicit_name_in_toml,omitempty"`
}

// PublishWarnings is returned to the client alongside a successful publish,
// per spec §4.1's "publish_crate_version(uid, upload) → warnings".
type PublishWarnings struct {
	InvalidCategories []string `json:"invalid_categories"`
	InvalidBadges     []string `json:"invalid_badges"`
	Other             []string `json:"other"`
}
