package archive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/convoflow/config"
	"github.com/BaSui01/convoflow/types"
)

func TestMongoRecordRoundTrip(t *testing.T) {
	snap := testSnapshot("conv-1")
	at := time.Date(2026, 8, 6, 12, 0, 0, 0, time.UTC)

	rec, err := newMongoRecord(snap, at)
	require.NoError(t, err)
	assert.Equal(t, "conv-1", rec.ID)
	assert.Equal(t, "debate", rec.Scenario)
	assert.Equal(t, string(types.PhaseTerminated), rec.Phase)
	assert.Equal(t, types.ReasonMaxCycles, rec.Reason)
	assert.Equal(t, 3, rec.MessageCount)
	assert.Equal(t, at, rec.ArchivedAt)

	decoded, err := rec.decode()
	require.NoError(t, err)
	assert.Equal(t, snap.ID, decoded.ID)
	assert.Equal(t, snap.Scenario, decoded.Scenario)
	require.Len(t, decoded.Messages, 3)
	assert.Equal(t, "The evidence favors spaces.", decoded.Messages[2].Content)
}

func TestMongoRecordSummary(t *testing.T) {
	rec, err := newMongoRecord(testSnapshot("conv-1"), time.Now().UTC())
	require.NoError(t, err)

	sum := rec.summary()
	assert.Equal(t, "conv-1", sum.ID)
	assert.Equal(t, "debate", sum.Scenario)
	assert.Equal(t, 2, sum.Cycles)
	assert.Equal(t, 3, sum.MessageCount)
}

func TestMongoRecordDecodeRejectsGarbage(t *testing.T) {
	rec := mongoRecord{ID: "conv-1", Payload: []byte("{not json")}
	_, err := rec.decode()
	require.Error(t, err)
}

func TestNewMongoStoreRejectsBadURI(t *testing.T) {
	_, err := NewMongoStore(config.ArchiveConfig{
		Backend:  BackendMongo,
		MongoURI: "://not-a-uri",
	}, zap.NewNop())
	require.Error(t, err)
}
