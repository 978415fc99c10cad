package nipc

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/matryer/is"
	"github.com/nivrem/nipc/codec"
	"github.com/nivrem/nipc/pubsub/memory"
)

func TestRequestEnvelopeRoundTrip(t *testing.T) {
	asrt := is.New(t)

	payload, err := marshalEnvelope(&requestEnvelope{
		Version: envelopeVersion,
		ID:      "id-1",
		From:    "node_a",
		Method:  "echo",
		Reply:   "rpc.node_a.reply.abc",
		Codec:   "json",
		Args:    [][]byte{[]byte(`"hi"`)},
		Timeout: int64(1e9),
	})
	asrt.NoErr(err)

	env, err := unmarshalRequest(payload)
	asrt.NoErr(err)
	asrt.Equal(env.ID, "id-1")
	asrt.Equal(env.From, "node_a")
	asrt.Equal(env.Method, "echo")
	asrt.Equal(env.Reply, "rpc.node_a.reply.abc")
	asrt.Equal(env.Codec, "json")
	asrt.Equal(len(env.Args), 1)
	asrt.Equal(env.Timeout, int64(1e9))
}

func TestUnmarshalRequestValidation(t *testing.T) {
	asrt := is.New(t)

	_, err := unmarshalRequest([]byte("{not json"))
	var serErr SerializationError
	asrt.True(errors.As(err, &serErr))

	var invalidErr InvalidRequestError

	env, err := unmarshalRequest([]byte(`{"v":99,"id":"x","method":"m","reply":"r"}`))
	asrt.True(errors.As(err, &invalidErr))
	asrt.True(env != nil)

	env, err = unmarshalRequest([]byte(`{"v":1,"method":"m","reply":"r"}`))
	asrt.True(errors.As(err, &invalidErr))
	asrt.True(env != nil)

	env, err = unmarshalRequest([]byte(`{"v":1,"id":"x","reply":"r"}`))
	asrt.True(errors.As(err, &invalidErr))
	asrt.True(env != nil)

	// reply subject kept available for addressing the error back
	env, err = unmarshalRequest([]byte(`{"v":1,"id":"x","method":"m"}`))
	asrt.True(errors.As(err, &invalidErr))
	asrt.Equal(env.Reply, "")
}

func TestUnmarshalResponseValidation(t *testing.T) {
	asrt := is.New(t)

	env, err := unmarshalResponse([]byte(`{"v":1,"id":"x","status":"ok"}`))
	asrt.NoErr(err)
	asrt.Equal(env.Status, statusOK)

	_, err = unmarshalResponse([]byte(`{"v":1,"id":"x","status":"maybe"}`))
	var invalidErr InvalidRequestError
	asrt.True(errors.As(err, &invalidErr))

	_, err = unmarshalResponse([]byte(`{"v":1,"status":"ok"}`))
	asrt.True(errors.As(err, &invalidErr))
}

func TestCallErrorMapping(t *testing.T) {
	asrt := is.New(t)

	err := callError("target", "echo", errorResponse("id", "responder", codeMethodNotFound, "not here"))
	var nfErr MethodNotFoundError
	asrt.True(errors.As(err, &nfErr))
	asrt.Equal(nfErr.Method, "echo")
	asrt.Equal(nfErr.NodeID, "responder")

	err = callError("target", "echo", errorResponse("id", "", codeMethodNotFound, "not here"))
	asrt.True(errors.As(err, &nfErr))
	asrt.Equal(nfErr.NodeID, "target")

	err = callError("target", "echo", errorResponse("id", "responder", codeInvalidRequest, "bad args"))
	var invalidErr InvalidRequestError
	asrt.True(errors.As(err, &invalidErr))
	asrt.Equal(invalidErr.Reason, "bad args")

	err = callError("target", "echo", errorResponse("id", "responder", codeRemoteError, "boom"))
	var remoteErr RemoteError
	asrt.True(errors.As(err, &remoteErr))
	asrt.Equal(remoteErr.Description, "boom")

	// unknown codes fall back to a remote error
	err = callError("target", "echo", errorResponse("id", "responder", "weird_code", "odd"))
	asrt.True(errors.As(err, &remoteErr))
}

func TestSubjects(t *testing.T) {
	asrt := is.New(t)

	asrt.Equal(requestSubject("node_a"), "rpc.node_a.request")
	asrt.Equal(replySubject("node_a", "Ab12"), "rpc.node_a.reply.Ab12")
	asrt.Equal(broadcastSubject("events.user"), "broadcast.events.user")
}

func TestPendingCalls(t *testing.T) {
	asrt := is.New(t)
	pending := newPendingCalls()

	ch := pending.add("call-1")
	asrt.Equal(pending.size(), 1)

	resolved := pending.resolve("call-1", &responseEnvelope{ID: "call-1", Status: statusOK})
	asrt.True(resolved)
	asrt.Equal(pending.size(), 0)

	env := <-ch
	asrt.Equal(env.ID, "call-1")

	// a second reply for the same id is dropped
	asrt.True(!pending.resolve("call-1", &responseEnvelope{ID: "call-1"}))

	pending.add("call-2")
	pending.remove("call-2")
	asrt.True(!pending.resolve("call-2", &responseEnvelope{ID: "call-2"}))
	asrt.Equal(pending.size(), 0)
}

func TestFailedCallLeavesNoPending(t *testing.T) {
	asrt := is.New(t)
	ctx := context.Background()
	bus := memory.New()

	node, err := NewNode(bus, bus, WithID("pd-node"))
	asrt.NoErr(err)
	asrt.NoErr(node.Run(ctx))
	defer node.Close()

	err = node.Call(ctx, "pd-node", "missing", nil)
	var nfErr MethodNotFoundError
	asrt.True(errors.As(err, &nfErr))
	asrt.Equal(node.pending.size(), 0)

	tctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err = node.Call(tctx, "nobody", "echo", nil)
	var toErr TimeoutError
	asrt.True(errors.As(err, &toErr))
	asrt.Equal(node.pending.size(), 0)
}

func TestArgsDecode(t *testing.T) {
	asrt := is.New(t)
	c := codec.Get("json")

	args := Args{
		{codec: c, data: []byte(`"hello"`)},
		{codec: c, data: []byte(`7`)},
	}

	var msg string
	var n int
	asrt.NoErr(args.Decode(&msg, &n))
	asrt.Equal(msg, "hello")
	asrt.Equal(n, 7)

	// decoding fewer targets than arguments is fine
	var first string
	asrt.NoErr(args.Decode(&first))
	asrt.Equal(first, "hello")

	var a, b, cc int
	err := args.Decode(&a, &b, &cc)
	var invalidErr InvalidRequestError
	asrt.True(errors.As(err, &invalidErr))

	// empty values leave the target untouched
	empty := Value{codec: c}
	kept := 99
	asrt.NoErr(empty.Decode(&kept))
	asrt.Equal(kept, 99)
}

func TestValidNodeID(t *testing.T) {
	asrt := is.New(t)

	asrt.True(ValidNodeID("node_1a2b3c4d"))
	asrt.True(ValidNodeID("worker-1"))
	asrt.True(!ValidNodeID(""))
	asrt.True(!ValidNodeID("has space"))
	asrt.True(!ValidNodeID("has.dot"))
	asrt.True(!ValidNodeID("wild*card"))
}

func TestValidChannel(t *testing.T) {
	asrt := is.New(t)

	asrt.True(ValidChannel("events"))
	asrt.True(ValidChannel("events.user.created"))
	asrt.True(!ValidChannel(""))
	asrt.True(!ValidChannel("events..user"))
	asrt.True(!ValidChannel(".events"))
	asrt.True(!ValidChannel("ev ents"))
	asrt.True(!ValidChannel("events.>"))
}

func TestGenerateNodeID(t *testing.T) {
	asrt := is.New(t)

	id := GenerateNodeID()
	asrt.True(strings.HasPrefix(id, "node_"))
	asrt.Equal(len(id), len("node_")+8)
	asrt.True(ValidNodeID(id))
	asrt.True(id != GenerateNodeID())
}
