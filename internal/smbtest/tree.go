package smbtest

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	. "github.com/macos-fuse-t/smbclient/internal/erref"
	. "github.com/macos-fuse-t/smbclient/internal/smb2"
	log "github.com/sirupsen/logrus"
)

type fileTree struct {
	treeId uint32
	share  string
	root   string
}

// handle is one open of a file or directory.
type handle struct {
	id    uint64
	tree  *fileTree
	name  string
	path  string
	isDir bool
	f     *os.File

	// directory enumeration
	entries []*FileDirectoryInfo
	cursor  int
	listed  bool
}

func (c *conn) treeConnect(pkt []byte) (Packet, NtStatus) {
	r := TreeConnectRequestDecoder(PacketCodec(pkt).Data())
	if r.IsInvalid() {
		return nil, STATUS_INVALID_PARAMETER
	}

	share, ok := c.srv.lookupShare(r.Path())
	if !ok {
		log.Debugf("smbtest: unknown share %q", r.Path())
		return nil, STATUS_BAD_NETWORK_NAME
	}

	tree := &fileTree{
		treeId: uint32(c.nextId()),
		share:  share,
		root:   c.srv.opts.Root,
	}
	c.trees[tree.treeId] = tree

	log.Debugf("smbtest: tree %d for %s", tree.treeId, share)

	rsp := &TreeConnectResponse{
		ShareType:     SMB2_SHARE_TYPE_DISK,
		MaximalAccess: GENERIC_ALL,
	}
	rsp.TreeId = tree.treeId

	return rsp, STATUS_SUCCESS
}

func (c *conn) treeDisconnect(pkt []byte) (Packet, NtStatus) {
	p := PacketCodec(pkt)

	tree, ok := c.trees[p.TreeId()]
	if !ok {
		return nil, STATUS_NETWORK_NAME_DELETED
	}

	for id, h := range c.handles {
		if h.tree == tree {
			c.release(id)
		}
	}
	delete(c.trees, tree.treeId)

	return new(TreeDisconnectResponse), STATUS_SUCCESS
}

// resolve maps a wire path onto the tree root. ".." never escapes it.
func (t *fileTree) resolve(name string) (string, NtStatus) {
	parts := strings.Split(name, `\`)
	clean := parts[:0]
	for _, p := range parts {
		switch p {
		case "", ".":
			continue
		case "..":
			return "", STATUS_OBJECT_NAME_INVALID
		}
		clean = append(clean, p)
	}
	return filepath.Join(append([]string{t.root}, clean...)...), STATUS_SUCCESS
}

func statusOf(err error) NtStatus {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return STATUS_OBJECT_NAME_NOT_FOUND
	case errors.Is(err, fs.ErrExist):
		return STATUS_OBJECT_NAME_COLLISION
	case errors.Is(err, fs.ErrPermission):
		return STATUS_ACCESS_DENIED
	}
	return STATUS_INVALID_DEVICE_REQUEST
}

func fileAttributes(fi os.FileInfo) uint32 {
	if fi.IsDir() {
		return FILE_ATTRIBUTE_DIRECTORY
	}
	return FILE_ATTRIBUTE_ARCHIVE
}

func (c *conn) create(tree *fileTree, pkt []byte) (Packet, NtStatus) {
	r := CreateRequestDecoder(PacketCodec(pkt).Data())
	if r.IsInvalid() {
		return nil, STATUS_INVALID_PARAMETER
	}

	name := r.Name()
	path, status := tree.resolve(name)
	if status != STATUS_SUCCESS {
		return nil, status
	}

	if path != tree.root {
		if fi, err := os.Stat(filepath.Dir(path)); err != nil || !fi.IsDir() {
			return nil, STATUS_OBJECT_PATH_NOT_FOUND
		}
	}

	wantDir := r.CreateOptions()&FILE_DIRECTORY_FILE != 0
	wantFile := r.CreateOptions()&FILE_NON_DIRECTORY_FILE != 0
	writable := r.DesiredAccess()&(GENERIC_WRITE|GENERIC_ALL|FILE_WRITE_DATA|FILE_APPEND_DATA) != 0

	fi, err := os.Stat(path)
	exists := err == nil
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, statusOf(err)
	}

	disposition := r.CreateDisposition()
	action := uint32(FILE_OPENED)

	switch disposition {
	case FILE_OPEN, FILE_OVERWRITE:
		if !exists {
			return nil, STATUS_OBJECT_NAME_NOT_FOUND
		}
	case FILE_CREATE:
		if exists {
			return nil, STATUS_OBJECT_NAME_COLLISION
		}
	case FILE_OPEN_IF, FILE_OVERWRITE_IF, FILE_SUPERSEDE:
	default:
		return nil, STATUS_INVALID_PARAMETER
	}

	if exists {
		if wantDir && !fi.IsDir() {
			return nil, STATUS_NOT_A_DIRECTORY
		}
		if wantFile && fi.IsDir() {
			return nil, STATUS_FILE_IS_A_DIRECTORY
		}
	}

	h := &handle{
		id:   c.nextId(),
		tree: tree,
		name: name,
		path: path,
	}

	switch {
	case exists && fi.IsDir():
		h.isDir = true
	case !exists && wantDir:
		if err := os.Mkdir(path, 0o755); err != nil {
			return nil, statusOf(err)
		}
		h.isDir = true
		action = FILE_CREATED
	default:
		flag := os.O_RDONLY
		if writable {
			flag = os.O_RDWR
		}
		switch {
		case !exists:
			flag |= os.O_CREATE | os.O_EXCL
			action = FILE_CREATED
		case disposition == FILE_OVERWRITE || disposition == FILE_OVERWRITE_IF:
			flag |= os.O_TRUNC
			action = FILE_OVERWRITTEN
		case disposition == FILE_SUPERSEDE:
			flag |= os.O_TRUNC
			action = FILE_SUPERSEDED
		}
		if flag&(os.O_CREATE|os.O_TRUNC) != 0 {
			flag |= os.O_RDWR
		}

		f, err := os.OpenFile(path, flag, 0o644)
		if err != nil {
			return nil, statusOf(err)
		}
		h.f = f
	}

	fi, err = os.Stat(path)
	if err != nil {
		if h.f != nil {
			h.f.Close()
		}
		return nil, statusOf(err)
	}

	c.handles[h.id] = h
	atomic.AddInt64(&c.srv.openHandles, 1)

	log.Debugf("smbtest: open %q as %d (action %d)", name, h.id, action)

	mtime := TimeToFiletime(fi.ModTime())

	fd := new(FileId)
	fd.SetNodeId(h.id)
	fd.SetHandleId(h.id)

	rsp := &CreateResponse{
		OplockLevel:    SMB2_OPLOCK_LEVEL_NONE,
		CreateAction:   action,
		CreationTime:   mtime,
		LastAccessTime: mtime,
		LastWriteTime:  mtime,
		ChangeTime:     mtime,
		FileAttributes: fileAttributes(fi),
		FileId:         fd,
	}
	if !fi.IsDir() {
		rsp.EndofFile = fi.Size()
		rsp.AllocationSize = fi.Size()
	}

	return rsp, STATUS_SUCCESS
}

func (c *conn) lookup(tree *fileTree, fd FileIdDecoder) (*handle, bool) {
	h, ok := c.handles[fd.Decode().HandleId()]
	if !ok || h.tree != tree {
		return nil, false
	}
	return h, true
}

func (c *conn) release(id uint64) {
	h, ok := c.handles[id]
	if !ok {
		return
	}
	delete(c.handles, id)
	atomic.AddInt64(&c.srv.openHandles, -1)

	if h.f != nil {
		if err := h.f.Close(); err != nil {
			log.Debugf("smbtest: close %s: %v", h.path, err)
		}
	}
}

func (c *conn) close(tree *fileTree, pkt []byte) (Packet, NtStatus) {
	r := CloseRequestDecoder(PacketCodec(pkt).Data())
	if r.IsInvalid() {
		return nil, STATUS_INVALID_PARAMETER
	}

	h, ok := c.lookup(tree, r.FileId())
	if !ok {
		return nil, STATUS_FILE_CLOSED
	}

	c.release(h.id)

	log.Debugf("smbtest: close %d", h.id)

	return new(CloseResponse), STATUS_SUCCESS
}

func (c *conn) read(tree *fileTree, pkt []byte) (Packet, NtStatus) {
	r := ReadRequestDecoder(PacketCodec(pkt).Data())
	if r.IsInvalid() {
		return nil, STATUS_INVALID_PARAMETER
	}

	h, ok := c.lookup(tree, r.FileId())
	if !ok {
		return nil, STATUS_FILE_CLOSED
	}
	if h.isDir {
		return nil, STATUS_FILE_IS_A_DIRECTORY
	}

	length := r.Length()
	if length > serverMaxReadSize {
		return nil, STATUS_INVALID_PARAMETER
	}

	fail, short := c.srv.faults.takeReadFault()
	if fail {
		log.Debugf("smbtest: failing read on %d", h.id)
		return nil, STATUS_INVALID_DEVICE_REQUEST
	}

	buf := make([]byte, length)
	n, err := h.f.ReadAt(buf, int64(r.Offset()))
	if err != nil && err != io.EOF {
		return nil, statusOf(err)
	}
	if n == 0 && length > 0 {
		return nil, STATUS_END_OF_FILE
	}

	if short {
		log.Debugf("smbtest: short read on %d", h.id)
		n = 0
	}

	return &ReadResponse{Data: buf[:n]}, STATUS_SUCCESS
}

func (c *conn) writeFile(tree *fileTree, pkt []byte) (Packet, NtStatus) {
	r := WriteRequestDecoder(PacketCodec(pkt).Data())
	if r.IsInvalid() {
		return nil, STATUS_INVALID_PARAMETER
	}

	h, ok := c.lookup(tree, r.FileId())
	if !ok {
		return nil, STATUS_FILE_CLOSED
	}
	if h.isDir {
		return nil, STATUS_FILE_IS_A_DIRECTORY
	}

	n, err := h.f.WriteAt(r.Data(), int64(r.Offset()))
	if err != nil {
		return nil, statusOf(err)
	}

	return &WriteResponse{Count: uint32(n)}, STATUS_SUCCESS
}

func (c *conn) queryDirectory(tree *fileTree, pkt []byte) (Packet, NtStatus) {
	r := QueryDirectoryRequestDecoder(PacketCodec(pkt).Data())
	if r.IsInvalid() {
		return nil, STATUS_INVALID_PARAMETER
	}

	if r.FileInfoClass() != FileDirectoryInformation {
		return nil, STATUS_NOT_SUPPORTED
	}

	h, ok := c.lookup(tree, r.FileId())
	if !ok {
		return nil, STATUS_FILE_CLOSED
	}
	if !h.isDir {
		return nil, STATUS_INVALID_PARAMETER
	}

	if !h.listed || r.Flags()&(SMB2_RESTART_SCANS|SMB2_REOPEN) != 0 {
		entries, err := h.scan(r.FileName())
		if err != nil {
			return nil, statusOf(err)
		}
		h.entries = entries
		h.cursor = 0
		h.listed = true
	}

	limit := int(r.OutputBufferLength())
	pageSize := c.srv.opts.PageSize

	var page FileDirectoryInfoList
	for h.cursor < len(h.entries) {
		e := h.entries[h.cursor]
		next := append(page, e)
		if len(page) > 0 && next.Size() > limit {
			break
		}
		page = next
		h.cursor++
		if r.Flags()&SMB2_RETURN_SINGLE_ENTRY != 0 || (pageSize > 0 && len(page) >= pageSize) {
			break
		}
	}

	if len(page) == 0 {
		return nil, STATUS_NO_MORE_FILES
	}
	if page.Size() > limit {
		return nil, STATUS_INVALID_PARAMETER
	}

	return &QueryDirectoryResponse{Output: page}, STATUS_SUCCESS
}

// scan lists the directory including "." and "..", filtered by pattern.
func (h *handle) scan(pattern string) ([]*FileDirectoryInfo, error) {
	if pattern == "" {
		pattern = "*"
	}

	des, err := os.ReadDir(h.path)
	if err != nil {
		return nil, err
	}
	sort.Slice(des, func(i, j int) bool { return des[i].Name() < des[j].Name() })

	self, err := os.Stat(h.path)
	if err != nil {
		return nil, err
	}

	var entries []*FileDirectoryInfo
	add := func(name string, fi os.FileInfo) {
		if !MatchWildcard(name, pattern) {
			return
		}
		mtime := TimeToFiletime(fi.ModTime())
		e := &FileDirectoryInfo{
			FileIndex:      uint32(len(entries)),
			CreationTime:   mtime,
			LastAccessTime: mtime,
			LastWriteTime:  mtime,
			ChangeTime:     mtime,
			FileAttributes: fileAttributes(fi),
			FileName:       name,
		}
		if !fi.IsDir() {
			e.EndOfFile = fi.Size()
			e.AllocationSize = fi.Size()
		}
		entries = append(entries, e)
	}

	add(".", self)
	add("..", self)

	for _, de := range des {
		fi, err := de.Info()
		if err != nil {
			continue
		}
		add(de.Name(), fi)
	}

	return entries, nil
}
