package storage

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/phx1999/SDN/routing"
	"github.com/phx1999/SDN/topology"

	log "github.com/sirupsen/logrus"
)

// TopologySnapshot is the content of topology.json.
type TopologySnapshot struct {
	Switches []topology.DPID                                     `json:"switches"`
	Edges    []routing.Edge                                      `json:"edges"`
	Paths    map[topology.DPID]map[topology.DPID][]topology.DPID `json:"paths"`
}

// FileManager keeps the latest flow table and topology snapshot on disk.
// A file is rewritten only when the md5 of its new content differs.
type FileManager struct {
	dataDir       string
	flowTableFile string
	topologyFile  string
	flowTableHash string
	topologyHash  string
	lock          sync.Mutex
}

func NewFileManager(dataDir string) (*FileManager, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir %s: %w", dataDir, err)
	}
	manager := &FileManager{
		dataDir:       dataDir,
		flowTableFile: filepath.Join(dataDir, "flow_table.json"),
		topologyFile:  filepath.Join(dataDir, "topology.json"),
	}
	manager.calculateHashes()
	return manager, nil
}

func (fm *FileManager) FlowTableFile() string { return fm.flowTableFile }
func (fm *FileManager) TopologyFile() string  { return fm.topologyFile }

func (fm *FileManager) Publish(_ context.Context, table *routing.FlowTable) error {
	tableData, err := json.MarshalIndent(table, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal flow table: %w", err)
	}
	snapshot, err := NewTopologySnapshot(table)
	if err != nil {
		return err
	}
	topoData, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal topology snapshot: %w", err)
	}

	fm.lock.Lock()
	defer fm.lock.Unlock()

	written, err := writeIfChanged(fm.flowTableFile, tableData, &fm.flowTableHash)
	if err != nil {
		return fmt.Errorf("failed to write flow table file: %w", err)
	}
	if written {
		log.Infof("flow table generation %d saved to %s", table.Generation(), fm.flowTableFile)
	}
	written, err = writeIfChanged(fm.topologyFile, topoData, &fm.topologyHash)
	if err != nil {
		return fmt.Errorf("failed to write topology file: %w", err)
	}
	if written {
		log.Infof("topology snapshot saved to %s", fm.topologyFile)
	}
	return nil
}

func NewTopologySnapshot(table *routing.FlowTable) (*TopologySnapshot, error) {
	snapshot := &TopologySnapshot{
		Switches: table.Switches(),
		Edges:    routing.Edges(table),
		Paths:    make(map[topology.DPID]map[topology.DPID][]topology.DPID),
	}
	for _, id := range snapshot.Switches {
		paths, err := table.PathsFrom(id)
		if err != nil {
			return nil, fmt.Errorf("failed to export paths of switch %d: %w", id, err)
		}
		snapshot.Paths[id] = paths
	}
	return snapshot, nil
}

// LoadTopologySnapshot reads topology.json as last saved.
func (fm *FileManager) LoadTopologySnapshot() (*TopologySnapshot, error) {
	data, err := os.ReadFile(fm.topologyFile)
	if err != nil {
		return nil, err
	}
	var snapshot TopologySnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("error unmarshalling %s: %w", fm.topologyFile, err)
	}
	return &snapshot, nil
}

func (fm *FileManager) GetFileHashes() (string, string) {
	fm.lock.Lock()
	defer fm.lock.Unlock()
	return fm.flowTableHash, fm.topologyHash
}

func writeIfChanged(path string, data []byte, hash *string) (bool, error) {
	sum := md5.Sum(data)
	newHash := hex.EncodeToString(sum[:])
	if newHash == *hash {
		return false, nil
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return false, err
	}
	*hash = newHash
	return true, nil
}

func calculateFileMD5(filepath string) (string, error) {
	f, err := os.Open(filepath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (fm *FileManager) calculateHashes() {
	if hash, err := calculateFileMD5(fm.flowTableFile); err == nil {
		fm.flowTableHash = hash
	} else {
		log.Warningf("flow table file hash failed, err: %v", err)
	}
	if hash, err := calculateFileMD5(fm.topologyFile); err == nil {
		fm.topologyHash = hash
	} else {
		log.Warningf("topology file hash failed, err: %v", err)
	}
	log.Infof("calculateHashes, flowTableHash: %s, topologyHash: %s", fm.flowTableHash, fm.topologyHash)
}
