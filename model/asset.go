package model

import (
	"errors"
	"fmt"

	"github.com/signalsfoundry/orbit-scene/scene"
)

// ErrAssetSettled indicates an asset already left the Pending state.
var ErrAssetSettled = errors.New("asset already settled")

// AssetStatus is the lifecycle state of a loaded asset.
type AssetStatus int

const (
	AssetPending AssetStatus = iota
	AssetReady
	AssetFailed
)

func (s AssetStatus) String() string {
	switch s {
	case AssetPending:
		return "pending"
	case AssetReady:
		return "ready"
	case AssetFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// LoadedAsset tracks one asynchronously loaded model. It moves from Pending
// to exactly one of Ready or Failed and never changes again.
type LoadedAsset struct {
	Name      string
	SourceURL string

	status AssetStatus
	handle *scene.Node
	err    error
}

// NewLoadedAsset returns a Pending asset.
func NewLoadedAsset(name, sourceURL string) *LoadedAsset {
	return &LoadedAsset{Name: name, SourceURL: sourceURL}
}

// Status returns the lifecycle state.
func (a *LoadedAsset) Status() AssetStatus { return a.status }

// Handle returns the attached node, or nil unless Ready.
func (a *LoadedAsset) Handle() *scene.Node { return a.handle }

// Err returns the load error, or nil unless Failed.
func (a *LoadedAsset) Err() error { return a.err }

// MarkReady records a successful load.
func (a *LoadedAsset) MarkReady(n *scene.Node) error {
	if a.status != AssetPending {
		return fmt.Errorf("asset %q is %s: %w", a.Name, a.status, ErrAssetSettled)
	}
	if n == nil {
		return fmt.Errorf("asset %q: ready without a node", a.Name)
	}
	a.status = AssetReady
	a.handle = n
	return nil
}

// MarkFailed records a failed load.
func (a *LoadedAsset) MarkFailed(err error) error {
	if a.status != AssetPending {
		return fmt.Errorf("asset %q is %s: %w", a.Name, a.status, ErrAssetSettled)
	}
	if err == nil {
		err = errors.New("unknown load error")
	}
	a.status = AssetFailed
	a.err = err
	return nil
}
