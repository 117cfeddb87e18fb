package contract

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-version"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

// FormatVersion is the version written into every artifact.
const FormatVersion = "2.0.0"

var supportedFormats = version.MustConstraints(version.NewConstraint(">= 1.0.0, < 3.0.0"))

// versionLocations lists where a format version is looked for, newest layout first.
var versionLocations = []string{
	"formatVersion",
	"metadata.pactSpecification.version",
	"metadata.pact-specification.version",
	"metadata.pactSpecificationVersion",
}

type Pacticipant struct {
	Name string `json:"name"`
}

// Artifact is the persisted contract between one consumer and one provider.
type Artifact struct {
	Consumer      Pacticipant   `json:"consumer"`
	Provider      Pacticipant   `json:"provider"`
	FormatVersion string        `json:"formatVersion"`
	Interactions  []Interaction `json:"interactions"`
}

func NewArtifact(consumer, provider string, interactions []Interaction) *Artifact {
	return &Artifact{
		Consumer:      Pacticipant{Name: consumer},
		Provider:      Pacticipant{Name: provider},
		FormatVersion: FormatVersion,
		Interactions:  interactions,
	}
}

// Encode renders the artifact as indented JSON. Encoding is deterministic: the same
// artifact always encodes to the same bytes.
func (a *Artifact) Encode() ([]byte, error) {
	if a.Interactions == nil {
		a.Interactions = []Interaction{}
	}
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "unable to encode contract")
	}
	return append(data, '\n'), nil
}

// Find returns the interaction with the given identity.
func (a *Artifact) Find(id Identity) (Interaction, bool) {
	for _, i := range a.Interactions {
		if i.Identity() == id {
			return i, true
		}
	}
	return Interaction{}, false
}

// Decode parses and validates an artifact. Older pact files that carry their version
// under metadata are accepted and upgraded to the current layout.
func Decode(data []byte) (*Artifact, error) {
	if !gjson.ValidBytes(data) {
		return nil, &ArtifactFormatError{Err: errors.New("not valid JSON")}
	}

	v, err := formatVersionOf(data)
	if err != nil {
		return nil, &ArtifactFormatError{Err: err}
	}

	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &ArtifactFormatError{Err: err}
	}
	if err := artifactSchema.Validate(doc); err != nil {
		return nil, &ArtifactFormatError{Err: err}
	}

	var artifact Artifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, &ArtifactFormatError{Err: err}
	}
	artifact.FormatVersion = v.String()
	if artifact.Interactions == nil {
		artifact.Interactions = []Interaction{}
	}

	legacy := !gjson.GetBytes(data, "formatVersion").Exists()

	seen := make(map[Identity]struct{}, len(artifact.Interactions))
	for n := range artifact.Interactions {
		i := &artifact.Interactions[n]
		i.Request.Method = strings.ToUpper(i.Request.Method)
		if legacy {
			i.Request.MatchingRules = i.Request.MatchingRules.CascadeContainerTypes(map[string]interface{}{"body": i.Request.Body})
			i.Response.MatchingRules = i.Response.MatchingRules.CascadeContainerTypes(map[string]interface{}{"body": i.Response.Body})
		}
		if err := i.Validate(); err != nil {
			return nil, &ArtifactFormatError{Err: err}
		}
		if _, ok := seen[i.Identity()]; ok {
			return nil, &ArtifactFormatError{Err: &DuplicateInteractionError{Description: i.Description, ProviderState: i.ProviderState}}
		}
		seen[i.Identity()] = struct{}{}
	}
	return &artifact, nil
}

func formatVersionOf(data []byte) (*version.Version, error) {
	for _, location := range versionLocations {
		value := gjson.GetBytes(data, location)
		if !value.Exists() {
			continue
		}
		v, err := version.NewVersion(value.String())
		if err != nil {
			return nil, errors.Wrapf(err, "invalid format version at %s", location)
		}
		if !supportedFormats.Check(v) {
			return nil, errors.Errorf("unsupported format version %s, supported %s", v, supportedFormats)
		}
		return v, nil
	}
	return nil, errors.New("no format version")
}

// ReadFile decodes the artifact stored at path.
func ReadFile(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ArtifactFormatError{Source: path, Err: err}
	}
	artifact, err := Decode(data)
	if err != nil {
		var formatErr *ArtifactFormatError
		if errors.As(err, &formatErr) {
			formatErr.Source = path
		}
		return nil, err
	}
	return artifact, nil
}

// WriteFile stores the artifact at path, replacing any previous file atomically.
func WriteFile(path string, artifact *Artifact) error {
	data, err := artifact.Encode()
	if err != nil {
		return err
	}
	return writeAtomically(path, data)
}

func writeAtomically(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "unable to create directory for %s", path)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return errors.Wrapf(err, "unable to write %s", path)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "unable to write %s", path)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "unable to write %s", path)
	}
	return errors.Wrapf(os.Rename(tmp.Name(), path), "unable to write %s", path)
}

// FileName is the name an artifact between consumer and provider is stored under.
func FileName(consumer, provider string) string {
	return fmt.Sprintf("%s-%s.json", slug(consumer), slug(provider))
}

func slug(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, name)
}
