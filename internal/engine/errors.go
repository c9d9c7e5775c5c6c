package engine

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/schmitthub/torrentbed/pkg/whail"
)

// ImageNotFoundError reports that create failed because the image is not
// present locally.
type ImageNotFoundError struct {
	Reference string
	Err       error
}

func (e *ImageNotFoundError) Error() string {
	return fmt.Sprintf("image %s not found locally", e.Reference)
}

func (e *ImageNotFoundError) Unwrap() error { return e.Err }

// NameConflictError reports that create failed because a container with the
// requested name already exists. ExistingID is empty only when neither a
// lookup nor the engine message yielded the occupant's ID; the occupant can
// still be removed by name.
type NameConflictError struct {
	Name       string
	ExistingID string
	Managed    bool // occupant carries our managed label
	Err        error
}

func (e *NameConflictError) Error() string {
	if e.ExistingID == "" {
		return fmt.Sprintf("container name %q is already in use", e.Name)
	}
	return fmt.Sprintf("container name %q is already in use by container %s", e.Name, shortID(e.ExistingID))
}

func (e *NameConflictError) Unwrap() error { return e.Err }

// Target is what to pass to remove: the ID when known, else the name.
func (e *NameConflictError) Target() string {
	if e.ExistingID != "" {
		return e.ExistingID
	}
	return e.Name
}

// EngineUnreachableError reports a transport failure talking to the engine.
type EngineUnreachableError struct {
	Err error
}

func (e *EngineUnreachableError) Error() string {
	return "container engine unreachable: " + whail.Cause(e.Err).Error()
}

func (e *EngineUnreachableError) Unwrap() error { return e.Err }

// conflictIDPattern extracts the occupant ID from a name-conflict message,
// with or without quotes around it.
var conflictIDPattern = regexp.MustCompile(`in use by container\s+"?([0-9a-fA-F]{12,64})"?`)

// conflictIDFromMessage is the fallback used when a structured lookup of
// the occupant is impossible.
func conflictIDFromMessage(msg string) string {
	m := conflictIDPattern.FindStringSubmatch(msg)
	if m == nil {
		return ""
	}
	return m[1]
}

// classify turns transport failures into EngineUnreachableError and leaves
// every other error as is.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if whail.IsUnreachable(err) {
		return &EngineUnreachableError{Err: err}
	}
	return err
}

// isMissingImage reports whether a not-found create error is about the image
// rather than, say, a missing bind source or network.
func isMissingImage(err error) bool {
	if !whail.IsNotFound(err) {
		return false
	}
	msg := strings.ToLower(whail.Cause(err).Error())
	return strings.Contains(msg, "image")
}
