package scene

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/spaghettifunk/morphix/engine/core"
	"github.com/spaghettifunk/morphix/engine/math"
	"github.com/spaghettifunk/morphix/engine/renderer/metadata"
)

var ErrAnchorNotFound = errors.New("anchor not attached to scene")

// AnchorNode is a world-fixed pose that carries at most one renderable.
type AnchorNode struct {
	ID         string
	Target     string
	Pose       math.Pose
	Transform  *math.Transform
	Renderable *metadata.Renderable
	CreatedAt  time.Time
}

// IsEmpty reports whether the anchor was attached without a renderable.
func (n *AnchorNode) IsEmpty() bool {
	return n.Renderable == nil
}

// WorldCenter is where the renderable's centre ends up in world space.
func (n *AnchorNode) WorldCenter() math.Vec3 {
	if n.Renderable == nil || n.Renderable.Geometry == nil {
		return n.Pose.Position
	}
	return n.Pose.TransformPoint(n.Renderable.Geometry.Center)
}

type Config struct {
	// MaxAnchors caps the number of attached anchors. Zero means no limit.
	MaxAnchors int
	NewID      core.IdentifierGenerator
	Now        func() time.Time
}

// Scene is the anchor graph the tracking reactor attaches to.
type Scene struct {
	mu    sync.RWMutex
	nodes map[string]*AnchorNode
	cfg   Config
}

func New(cfg Config) *Scene {
	if cfg.NewID == nil {
		cfg.NewID = core.NewIdentifier
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Scene{
		nodes: make(map[string]*AnchorNode),
		cfg:   cfg,
	}
}

// Attach creates an anchor at pose for target. The renderable may be nil.
func (s *Scene) Attach(target string, pose math.Pose, r *metadata.Renderable) (*AnchorNode, error) {
	if !pose.IsValid() {
		return nil, fmt.Errorf("%w: invalid pose for target %q", core.ErrAnchorCreate, target)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.MaxAnchors > 0 && len(s.nodes) >= s.cfg.MaxAnchors {
		return nil, fmt.Errorf("%w: anchor limit of %d reached", core.ErrAnchorCreate, s.cfg.MaxAnchors)
	}
	node := &AnchorNode{
		ID:         s.cfg.NewID(),
		Target:     target,
		Pose:       pose,
		Transform:  pose.ToTransform(),
		Renderable: r,
		CreatedAt:  s.cfg.Now(),
	}
	s.nodes[node.ID] = node
	core.LogDebug("anchor %s attached for '%s' at %+v", node.ID, target, pose.Position)
	return node, nil
}

// Detach removes the anchor and clears its renderable reference.
func (s *Scene) Detach(node *AnchorNode) error {
	if node == nil {
		return ErrAnchorNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[node.ID]; !ok {
		return fmt.Errorf("%w: %s", ErrAnchorNotFound, node.ID)
	}
	delete(s.nodes, node.ID)
	node.Renderable = nil
	core.LogDebug("anchor %s detached", node.ID)
	return nil
}

func (s *Scene) SetRenderable(node *AnchorNode, r *metadata.Renderable) error {
	if node == nil {
		return ErrAnchorNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[node.ID]; !ok {
		return fmt.Errorf("%w: %s", ErrAnchorNotFound, node.ID)
	}
	node.Renderable = r
	return nil
}

// Nodes returns the attached anchors, oldest first.
func (s *Scene) Nodes() []*AnchorNode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*AnchorNode, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *Scene) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// Shutdown detaches everything.
func (s *Scene) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, n := range s.nodes {
		n.Renderable = nil
		delete(s.nodes, id)
	}
	return nil
}
