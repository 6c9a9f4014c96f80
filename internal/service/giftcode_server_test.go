package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	giftcodev1 "github.com/kkkkikiki/infestor/internal/rpc/giftcodev1"
)

const testAdminToken = "s3cret"

func newTestGiftCodeClient(t *testing.T, clientToken string) (giftcodev1.GiftCodeServiceClient, GiftCodeStore) {
	t.Helper()

	store := newTestStore(t)
	server := NewGiftCodeServer(store, zap.NewNop())

	mux := http.NewServeMux()
	path, handler := giftcodev1.NewGiftCodeServiceHandler(server,
		connect.WithInterceptors(giftcodev1.NewAuthInterceptor(testAdminToken)),
	)
	mux.Handle(path, handler)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := giftcodev1.NewGiftCodeServiceClient(srv.Client(), srv.URL,
		connect.WithInterceptors(giftcodev1.NewAuthInterceptor(clientToken)),
	)
	return client, store
}

func TestGiftCodeServerAddAndGet(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestGiftCodeClient(t, testAdminToken)

	added, err := client.AddGiftCode(ctx, connect.NewRequest(&giftcodev1.AddGiftCodeRequest{Code: "ABC123"}))
	require.NoError(t, err)
	assert.Equal(t, "ABC123", added.Msg.GiftCode.Code)
	assert.True(t, added.Msg.GiftCode.Valid)
	assert.Nil(t, added.Msg.GiftCode.UsedAt)

	got, err := client.GetGiftCode(ctx, connect.NewRequest(&giftcodev1.GetGiftCodeRequest{Code: "ABC123"}))
	require.NoError(t, err)
	assert.Equal(t, "ABC123", got.Msg.GiftCode.Code)
	assert.True(t, got.Msg.GiftCode.Valid)
}

func TestGiftCodeServerDuplicate(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestGiftCodeClient(t, testAdminToken)

	_, err := client.AddGiftCode(ctx, connect.NewRequest(&giftcodev1.AddGiftCodeRequest{Code: "ABC123"}))
	require.NoError(t, err)

	_, err = client.AddGiftCode(ctx, connect.NewRequest(&giftcodev1.AddGiftCodeRequest{Code: "ABC123"}))
	require.Error(t, err)
	assert.Equal(t, connect.CodeAlreadyExists, connect.CodeOf(err))
}

func TestGiftCodeServerGeneratesCodes(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestGiftCodeClient(t, testAdminToken)

	res, err := client.AddGiftCode(ctx, connect.NewRequest(&giftcodev1.AddGiftCodeRequest{CreatedFor: "author"}))
	require.NoError(t, err)
	assert.Len(t, res.Msg.GiftCode.Code, 12)
	assert.Equal(t, "author", res.Msg.GiftCode.CreatedFor)

	list, err := client.ListGiftCodes(ctx, connect.NewRequest(&giftcodev1.ListGiftCodesRequest{CreatedFor: "author"}))
	require.NoError(t, err)
	require.Len(t, list.Msg.GiftCodes, 1)
	assert.Equal(t, res.Msg.GiftCode.Code, list.Msg.GiftCodes[0].Code)
}

func TestGiftCodeServerReportsUsedCodes(t *testing.T) {
	ctx := context.Background()
	client, store := newTestGiftCodeClient(t, testAdminToken)

	_, err := client.AddGiftCode(ctx, connect.NewRequest(&giftcodev1.AddGiftCodeRequest{Code: "ABC123"}))
	require.NoError(t, err)
	require.NoError(t, store.MarkCodeAsUsed(ctx, "ABC123"))

	got, err := client.GetGiftCode(ctx, connect.NewRequest(&giftcodev1.GetGiftCodeRequest{Code: "ABC123"}))
	require.NoError(t, err)
	assert.False(t, got.Msg.GiftCode.Valid)
	assert.NotNil(t, got.Msg.GiftCode.UsedAt)
}

func TestGiftCodeServerErrors(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestGiftCodeClient(t, testAdminToken)

	_, err := client.GetGiftCode(ctx, connect.NewRequest(&giftcodev1.GetGiftCodeRequest{Code: "NOPE"}))
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))

	_, err = client.GetGiftCode(ctx, connect.NewRequest(&giftcodev1.GetGiftCodeRequest{}))
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	_, err = client.ListGiftCodes(ctx, connect.NewRequest(&giftcodev1.ListGiftCodesRequest{}))
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
}

func TestGiftCodeServerRequiresToken(t *testing.T) {
	client, _ := newTestGiftCodeClient(t, "wrong")

	_, err := client.AddGiftCode(context.Background(), connect.NewRequest(&giftcodev1.AddGiftCodeRequest{Code: "ABC123"}))
	require.Error(t, err)
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))
}
