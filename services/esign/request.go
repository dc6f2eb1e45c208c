package esign

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"recruitflow-crm/pkg/taskname"
	"recruitflow-crm/services/feeagreement"
)

// SignatureRequester creates a signature request at the provider and returns
// the provider's contract identifier. Real implementations wrap the provider
// SDKs; the default one only simulates the call so the lifecycle can run
// end to end without provider credentials.
type SignatureRequester interface {
	CreateRequest(ctx context.Context, agreement *feeagreement.FeeAgreement) (string, error)
}

// stubRequester mints a deterministic-looking contract id. Outbound provider
// calls are stubbed; the inbound webhook path is the part under contract.
type stubRequester struct {
	node *snowflake.Node
}

func NewStubRequester(node *snowflake.Node) SignatureRequester {
	return &stubRequester{node: node}
}

func (r *stubRequester) CreateRequest(_ context.Context, agreement *feeagreement.FeeAgreement) (string, error) {
	return fmt.Sprintf("%s-%s", agreement.Provider, r.node.Generate().String()), nil
}

// RequestWorker consumes signature-request tasks queued when a regional
// director approves an agency-managed agreement.
type RequestWorker struct {
	requester  SignatureRequester
	agreements *feeagreement.Service
}

func NewRequestWorker(requester SignatureRequester, agreements *feeagreement.Service) *RequestWorker {
	return &RequestWorker{requester: requester, agreements: agreements}
}

func RegisterRequestWorker(mux *asynq.ServeMux, w *RequestWorker) {
	mux.HandleFunc(taskname.EsignRequestCreate, w.HandleCreate)
}

func (w *RequestWorker) HandleCreate(ctx context.Context, t *asynq.Task) error {
	var payload feeagreement.SignatureRequestTask
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return err
	}

	agreement, err := w.agreements.Get(ctx, payload.AgreementID)
	if err != nil {
		return err
	}
	if agreement.ExternalContractID != "" {
		// a retry after a partial failure; the request already exists
		zap.L().Info("signature request already created",
			zap.String("fee_agreement_id", agreement.ID),
			zap.String("external_contract_id", agreement.ExternalContractID),
		)
		return nil
	}

	contractID, err := w.requester.CreateRequest(ctx, agreement)
	if err != nil {
		return err
	}
	if err := w.agreements.RecordExternalContract(ctx, agreement.ID, contractID); err != nil {
		return err
	}

	zap.L().Info("signature request created",
		zap.String("fee_agreement_id", agreement.ID),
		zap.String("provider", string(payload.Provider)),
		zap.String("external_contract_id", contractID),
	)
	return nil
}
