package structtag

type Marker struct {
	Strategy string `json:"strategy"`
	Digest   string `json:"strategy"` // want `struct field Digest repeats json tag "strategy" also at structtag.go:4`
}

type Malformed struct {
	Version int `json:"version" toml` // want `struct field tag .* not compatible with reflect.StructTag.Get`
}

type Good struct {
	Version int `json:"version" toml:"version"` // OK
}
