package deployments

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Abdullah1738/merkle-airdrop/offchain/solana"
	"github.com/Abdullah1738/merkle-airdrop/protocol"
)

var ErrNotFound = errors.New("deployment not found")

type Registry struct {
	SchemaVersion int          `json:"schema_version"`
	Deployments   []Deployment `json:"deployments"`
}

// Deployment describes one cluster. Empty fields fall back to the built-in
// defaults.
type Deployment struct {
	Name    string `json:"name"`
	Cluster string `json:"cluster,omitempty"`
	RPCURL  string `json:"rpc_url,omitempty"`
	// BroadcastURLs receive a copy of every claim transaction.
	BroadcastURLs []string `json:"broadcast_urls,omitempty"`
	ProofURL      string   `json:"proof_url,omitempty"`

	DistributorV1ProgramID string `json:"distributor_v1_program_id,omitempty"`
	DistributorV2ProgramID string `json:"distributor_v2_program_id,omitempty"`
}

func Load(path string) (Registry, error) {
	var out Registry
	path = strings.TrimSpace(path)
	if path == "" {
		return Registry{}, errors.New("path required")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Registry{}, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return Registry{}, err
	}
	return out, nil
}

func (r Registry) FindByName(name string) (Deployment, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Deployment{}, errors.New("name required")
	}
	for _, d := range r.Deployments {
		if d.Name == name {
			return d, nil
		}
	}
	return Deployment{}, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// ProgramIDs returns the deployment's distributor programs, defaulting each
// unset version to the mainnet program.
func (d Deployment) ProgramIDs() (protocol.ProgramIDs, error) {
	ids := protocol.DefaultProgramIDs()
	if s := strings.TrimSpace(d.DistributorV1ProgramID); s != "" {
		pk, err := solana.ParsePubkey(s)
		if err != nil {
			return protocol.ProgramIDs{}, fmt.Errorf("%s: distributor_v1_program_id: %w", d.Name, err)
		}
		ids.V1 = pk
	}
	if s := strings.TrimSpace(d.DistributorV2ProgramID); s != "" {
		pk, err := solana.ParsePubkey(s)
		if err != nil {
			return protocol.ProgramIDs{}, fmt.Errorf("%s: distributor_v2_program_id: %w", d.Name, err)
		}
		ids.V2 = pk
	}
	if err := ids.Validate(); err != nil {
		return protocol.ProgramIDs{}, fmt.Errorf("%s: %w", d.Name, err)
	}
	return ids, nil
}
