package blockchain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerkleTreeEvenLeaves(t *testing.T) {
	data := [][]byte{[]byte("a"), []byte("b"), []byte("c"), []byte("d")}

	tree := NewMerkleTree(data)
	require.NotNil(t, tree.RootNode)
	assert.Len(t, tree.RootNode.Data, 32)
}

func TestMerkleTreeOddLeavesDuplicatesLast(t *testing.T) {
	odd := [][]byte{[]byte("a"), []byte("b"), []byte("c")}
	evenWithDup := [][]byte{[]byte("a"), []byte("b"), []byte("c"), []byte("c")}

	oddTree := NewMerkleTree(odd)
	dupTree := NewMerkleTree(evenWithDup)

	assert.Equal(t, dupTree.RootNode.Data, oddTree.RootNode.Data,
		"an odd leaf count must duplicate the last leaf rather than leave it unpaired")
}

func TestMerkleTreeSingleLeaf(t *testing.T) {
	tree := NewMerkleTree([][]byte{[]byte("only")})
	assert.Len(t, tree.RootNode.Data, 32)
}
