package smb2

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	. "github.com/macos-fuse-t/smbclient/internal/smb2"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/singleflight"
)

type treeConn struct {
	*session
	treeId        uint32
	shareFlags    uint32
	shareType     uint8
	maximalAccess uint32
	path          string
}

func treeConnect(s *session, path string, ctx context.Context) (*treeConn, error) {
	req := &TreeConnectRequest{
		Path: path,
	}

	pkt, res, err := s.conn.roundTrip(SMB2_TREE_CONNECT, req, nil, ctx)
	if err != nil {
		return nil, err
	}

	r := TreeConnectResponseDecoder(res)
	if r.IsInvalid() {
		return nil, &InvalidResponseError{"broken tree connect response format"}
	}

	if r.ShareFlags()&SMB2_SHAREFLAG_ENCRYPT_DATA != 0 {
		return nil, fmt.Errorf("%w: share requires encryption", ErrProtocolMismatch)
	}

	tc := &treeConn{
		session:       s,
		treeId:        PacketCodec(pkt).TreeId(),
		shareFlags:    r.ShareFlags(),
		shareType:     r.ShareType(),
		maximalAccess: r.MaximalAccess(),
		path:          path,
	}

	log.Debugf("tree %s connected as 0x%x", path, tc.treeId)

	return tc, nil
}

func (tc *treeConn) disconnect(ctx context.Context) error {
	req := new(TreeDisconnectRequest)

	res, err := tc.conn.sendRecv(SMB2_TREE_DISCONNECT, req, tc, ctx)
	if err != nil {
		return err
	}

	r := TreeDisconnectResponseDecoder(res)
	if r.IsInvalid() {
		return &InvalidResponseError{"broken tree disconnect response format"}
	}

	return nil
}

// treeManager keeps at most one tree per share name.
type treeManager struct {
	s      *session
	host   string
	policy RetryPolicy

	m     sync.Mutex
	trees map[string]*Tree
	group singleflight.Group
}

func newTreeManager(s *session, host string, policy RetryPolicy) *treeManager {
	return &treeManager{
		s:      s,
		host:   host,
		policy: policy,
		trees:  make(map[string]*Tree),
	}
}

func shareKey(share string) string {
	return strings.ToUpper(share)
}

func (m *treeManager) lookup(key string) *Tree {
	m.m.Lock()
	defer m.m.Unlock()

	return m.trees[key]
}

// connect returns the tree for share, sending TREE_CONNECT only when no tree
// exists yet. Concurrent first connects share one request.
func (m *treeManager) connect(ctx context.Context, share string) (*Tree, error) {
	share = strings.Trim(share, `\/`)
	if share == "" || strings.ContainsAny(share, `\/`) {
		return nil, &InternalError{fmt.Sprintf("invalid share name %q", share)}
	}

	key := shareKey(share)

	if t := m.lookup(key); t != nil {
		return t, nil
	}

	ch := m.group.DoChan(key, func() (interface{}, error) {
		if t := m.lookup(key); t != nil {
			return t, nil
		}

		// joiners wait on their own ctx; the shared request is bounded by
		// the request timeout only
		tc, err := treeConnect(m.s, fmt.Sprintf(`\\%s\%s`, m.host, share), context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}

		t := &Tree{treeConn: tc, name: share, m: m}

		m.m.Lock()
		m.trees[key] = t
		m.m.Unlock()

		return t, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, wrapPathError("mount", share, res.Err)
		}
		return res.Val.(*Tree), nil
	case <-ctx.Done():
		return nil, &ContextError{Err: ctx.Err()}
	}
}

func (m *treeManager) remove(t *Tree) {
	m.m.Lock()
	defer m.m.Unlock()

	key := shareKey(t.name)
	if m.trees[key] == t {
		delete(m.trees, key)
	}
}

func (m *treeManager) shares() []string {
	m.m.Lock()
	defer m.m.Unlock()

	names := make([]string, 0, len(m.trees))
	for _, key := range maps.Keys(m.trees) {
		names = append(names, m.trees[key].name)
	}
	slices.Sort(names)
	return names
}

// disconnectAll tears down every tree; used while closing the client.
func (m *treeManager) disconnectAll(ctx context.Context) {
	m.m.Lock()
	trees := maps.Values(m.trees)
	m.m.Unlock()

	for _, t := range trees {
		if err := t.Disconnect(ctx); err != nil {
			log.Debugf("disconnect %s: %v", t.name, err)
		}
	}
}

// Tree represents a connected share.
type Tree struct {
	*treeConn
	name string
	m    *treeManager

	disconnected int32
}

// Name returns the share name as given to Mount.
func (t *Tree) Name() string {
	return t.name
}

func (t *Tree) check() error {
	if atomic.LoadInt32(&t.disconnected) != 0 {
		return ErrTreeDisconnected
	}
	return nil
}

// Disconnect sends TREE_DISCONNECT. Any later use of t fails with
// ErrTreeDisconnected.
func (t *Tree) Disconnect(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&t.disconnected, 0, 1) {
		return ErrTreeDisconnected
	}

	t.m.remove(t)

	return wrapPathError("umount", t.name, t.treeConn.disconnect(ctx))
}
