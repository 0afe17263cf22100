package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/ckpt/internal/ir"
)

func TestValidate_Valid(t *testing.T) {
	topo := &Topology{Actors: []ir.ActorSpec{
		{ID: "a", Program: "counter", Deny: []string{"inc"}, Peers: map[string]ir.ActorID{"other": "b"}},
		{ID: "b", Program: "counter", Peers: map[string]ir.ActorID{"self": "b"}},
	}}
	known := func(p string) bool { return p == "counter" }

	assert.Empty(t, Validate(topo, known))
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	topo := &Topology{Actors: []ir.ActorSpec{
		{
			ID:      "a",
			Program: "ledger",
			Deny:    []string{"inc", " ", "inc"},
			Peers:   map[string]ir.ActorID{"other": "ghost", "": "a"},
		},
	}}
	known := func(p string) bool { return p == "counter" }

	errs := Validate(topo, known)

	codes := make([]string, len(errs))
	for i, e := range errs {
		codes[i] = e.Code
	}
	assert.Equal(t, []string{
		ErrUnknownProgram,
		ErrEmptyDeny,
		ErrDuplicateDeny,
		ErrEmptyPeerName,
		ErrUnknownPeer,
	}, codes)
	assert.Equal(t, `[E202] actor.a.peers.other: actor "ghost" is not deployed`, errs[4].Error())
}

func TestValidate_NilKnownSkipsProgramCheck(t *testing.T) {
	topo := &Topology{Actors: []ir.ActorSpec{{ID: "a", Program: "anything"}}}
	assert.Empty(t, Validate(topo, nil))
}
