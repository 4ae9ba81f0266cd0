package procurement

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sitechain-erp/sitechain-erp/internal/inventory"
	"github.com/sitechain-erp/sitechain-erp/internal/shared"
)

// placedPO seeds an approved-and-placed PO with a single 10 x 50 line and
// returns it with its line.
func placedPO(t *testing.T, env *testEnv) (PurchaseOrder, PurchaseOrderItem) {
	t.Helper()
	ctx := context.Background()
	po, err := env.svc.CreatePO(ctx, CreatePoInput{
		SupplierID: 2, ProjectID: 7, CreatedBy: 3,
		Items: []PoItemInput{{
			ItemID: 1, Qty: 10, Unit: "bag", UnitPrice: price("50"),
			CGSTRate: price("9"), SGSTRate: price("9"),
		}},
	})
	require.NoError(t, err)
	require.NoError(t, env.svc.ApprovePO(ctx, po.ID, 5))
	po, err = env.svc.PlacePO(ctx, po.ID, 5)
	require.NoError(t, err)
	_, lines, err := env.svc.GetPO(ctx, po.ID)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	return po, lines[0]
}

func TestVerificationIsTheSoleInventoryTrigger(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()
	po, poLine := placedPO(t, env)

	receipt, err := env.svc.CreateReceipt(ctx, CreateReceiptInput{
		POID: po.ID, WarehouseID: 4, CreatedBy: 3,
		Items: []ReceiptItemInput{{POItemID: poLine.ID, QtyReceived: 10}},
	})
	require.NoError(t, err)
	require.Equal(t, ReceiptPending, receipt.Status)
	require.Empty(t, env.inventory.changes, "creation must not touch inventory")

	_, items, err := env.svc.GetReceipt(ctx, receipt.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	// zero rates inherit the PO line's GST rates
	require.True(t, items[0].CGSTRate.Equal(price("9")))

	require.NoError(t, env.svc.ReceiveReceipt(ctx, receipt.ID, []ReceiveLineInput{
		{ReceiptItemID: items[0].ID, QtyActuallyReceived: 10, Condition: ConditionGood},
	}, 3))
	require.Empty(t, env.inventory.changes, "receiving must not touch inventory")

	require.NoError(t, env.svc.VerifyReceipt(ctx, VerifyReceiptInput{
		ReceiptID: receipt.ID,
		Lines:     []VerifyLineInput{{ReceiptItemID: items[0].ID, VerifiedQty: 10}},
		ActorID:   5,
	}))

	require.Len(t, env.inventory.changes, 1)
	change := env.inventory.changes[0]
	require.Equal(t, inventory.TransactionPurchase, change.Type)
	require.Equal(t, 10.0, change.Delta)
	require.Equal(t, int64(4), change.WarehouseID)
	require.Equal(t, int64(7), change.ProjectID)

	gotPO, poLines, err := env.svc.GetPO(ctx, po.ID)
	require.NoError(t, err)
	require.Equal(t, 10.0, poLines[0].QtyReceived)
	require.Equal(t, PoFullyReceived, gotPO.Status)

	gotReceipt, _, err := env.svc.GetReceipt(ctx, receipt.ID)
	require.NoError(t, err)
	require.Equal(t, ReceiptApproved, gotReceipt.Status)
	require.NotNil(t, gotReceipt.InventoryPostedAt)

	// verifying twice must not double-post
	err = env.svc.VerifyReceipt(ctx, VerifyReceiptInput{
		ReceiptID: receipt.ID,
		Lines:     []VerifyLineInput{{ReceiptItemID: items[0].ID, VerifiedQty: 10}},
		ActorID:   5,
	})
	require.ErrorIs(t, err, shared.ErrAlreadyProcessed)
	require.Len(t, env.inventory.changes, 1)
}

func TestPartialVerificationDerivesPartiallyReceived(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()
	po, poLine := placedPO(t, env)

	receipt, err := env.svc.CreateReceipt(ctx, CreateReceiptInput{
		POID: po.ID, WarehouseID: 4, CreatedBy: 3,
		Items: []ReceiptItemInput{{POItemID: poLine.ID, QtyReceived: 6}},
	})
	require.NoError(t, err)
	_, items, err := env.svc.GetReceipt(ctx, receipt.ID)
	require.NoError(t, err)

	require.NoError(t, env.svc.ReceiveReceipt(ctx, receipt.ID, []ReceiveLineInput{
		{ReceiptItemID: items[0].ID, QtyActuallyReceived: 6, Condition: ConditionPartial},
	}, 3))
	require.NoError(t, env.svc.VerifyReceipt(ctx, VerifyReceiptInput{
		ReceiptID: receipt.ID,
		Lines:     []VerifyLineInput{{ReceiptItemID: items[0].ID, VerifiedQty: 6}},
		ActorID:   5,
	}))

	gotPO, _, err := env.svc.GetPO(ctx, po.ID)
	require.NoError(t, err)
	require.Equal(t, PoPartiallyReceived, gotPO.Status)
}

func TestRejectedLinesNeverPost(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()
	po, poLine := placedPO(t, env)

	receipt, err := env.svc.CreateReceipt(ctx, CreateReceiptInput{
		POID: po.ID, WarehouseID: 4, CreatedBy: 3,
		Items: []ReceiptItemInput{{POItemID: poLine.ID, QtyReceived: 10}},
	})
	require.NoError(t, err)
	_, items, err := env.svc.GetReceipt(ctx, receipt.ID)
	require.NoError(t, err)

	require.NoError(t, env.svc.ReceiveReceipt(ctx, receipt.ID, []ReceiveLineInput{
		{ReceiptItemID: items[0].ID, QtyActuallyReceived: 10, Condition: ConditionRejected, Notes: "water damage"},
	}, 3))
	require.NoError(t, env.svc.VerifyReceipt(ctx, VerifyReceiptInput{
		ReceiptID: receipt.ID,
		Lines:     []VerifyLineInput{{ReceiptItemID: items[0].ID, VerifiedQty: 10}},
		ActorID:   5,
	}))

	require.Empty(t, env.inventory.changes)
	gotPO, poLines, err := env.svc.GetPO(ctx, po.ID)
	require.NoError(t, err)
	require.Equal(t, 0.0, poLines[0].QtyReceived)
	require.Equal(t, PoPlaced, gotPO.Status)
}

func TestOverReceiptRequiresExplicitFlag(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()
	po, poLine := placedPO(t, env)

	receipt, err := env.svc.CreateReceipt(ctx, CreateReceiptInput{
		POID: po.ID, WarehouseID: 4, CreatedBy: 3,
		Items: []ReceiptItemInput{{POItemID: poLine.ID, QtyReceived: 12}},
	})
	require.NoError(t, err)
	_, items, err := env.svc.GetReceipt(ctx, receipt.ID)
	require.NoError(t, err)
	require.NoError(t, env.svc.ReceiveReceipt(ctx, receipt.ID, []ReceiveLineInput{
		{ReceiptItemID: items[0].ID, QtyActuallyReceived: 12, Condition: ConditionGood},
	}, 3))

	err = env.svc.VerifyReceipt(ctx, VerifyReceiptInput{
		ReceiptID: receipt.ID,
		Lines:     []VerifyLineInput{{ReceiptItemID: items[0].ID, VerifiedQty: 12}},
		ActorID:   5,
	})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Empty(t, env.inventory.changes)

	require.NoError(t, env.svc.VerifyReceipt(ctx, VerifyReceiptInput{
		ReceiptID:        receipt.ID,
		Lines:            []VerifyLineInput{{ReceiptItemID: items[0].ID, VerifiedQty: 12}},
		AllowOverReceipt: true,
		ActorID:          5,
	}))
	require.Len(t, env.inventory.changes, 1)

	_, poLines, err := env.svc.GetPO(ctx, po.ID)
	require.NoError(t, err)
	require.Equal(t, 12.0, poLines[0].QtyReceived)
}

func TestFailedVerificationLeavesInventoryUntouched(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	po, err := env.svc.CreatePO(ctx, CreatePoInput{
		SupplierID: 2, ProjectID: 7, CreatedBy: 3,
		Items: []PoItemInput{
			{ItemID: 1, Qty: 10, Unit: "bag", UnitPrice: price("50")},
			{ItemID: 2, Qty: 10, Unit: "bag", UnitPrice: price("30")},
		},
	})
	require.NoError(t, err)
	require.NoError(t, env.svc.ApprovePO(ctx, po.ID, 5))
	po, err = env.svc.PlacePO(ctx, po.ID, 5)
	require.NoError(t, err)
	_, poLines, err := env.svc.GetPO(ctx, po.ID)
	require.NoError(t, err)
	require.Len(t, poLines, 2)

	receipt, err := env.svc.CreateReceipt(ctx, CreateReceiptInput{
		POID: po.ID, WarehouseID: 4, CreatedBy: 3,
		Items: []ReceiptItemInput{
			{POItemID: poLines[0].ID, QtyReceived: 10},
			{POItemID: poLines[1].ID, QtyReceived: 50},
		},
	})
	require.NoError(t, err)
	_, items, err := env.svc.GetReceipt(ctx, receipt.ID)
	require.NoError(t, err)
	require.NoError(t, env.svc.ReceiveReceipt(ctx, receipt.ID, []ReceiveLineInput{
		{ReceiptItemID: items[0].ID, QtyActuallyReceived: 10, Condition: ConditionGood},
		{ReceiptItemID: items[1].ID, QtyActuallyReceived: 50, Condition: ConditionGood},
	}, 3))

	// the first line is fine on its own, the second over-receives; the
	// verification must fail as a whole with no stock moved for either line
	err = env.svc.VerifyReceipt(ctx, VerifyReceiptInput{
		ReceiptID: receipt.ID,
		Lines: []VerifyLineInput{
			{ReceiptItemID: items[0].ID, VerifiedQty: 10},
			{ReceiptItemID: items[1].ID, VerifiedQty: 50},
		},
		ActorID: 5,
	})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Empty(t, env.inventory.changes)

	gotPO, gotLines, err := env.svc.GetPO(ctx, po.ID)
	require.NoError(t, err)
	require.Equal(t, PoPlaced, gotPO.Status)
	require.Equal(t, 0.0, gotLines[0].QtyReceived)
	require.Equal(t, 0.0, gotLines[1].QtyReceived)

	gotReceipt, _, err := env.svc.GetReceipt(ctx, receipt.ID)
	require.NoError(t, err)
	require.Equal(t, ReceiptReceived, gotReceipt.Status)
	require.Nil(t, gotReceipt.InventoryPostedAt)
}

func TestOverReceiptGuardSumsLinesAgainstSamePOLine(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()
	po, poLine := placedPO(t, env)

	receipt, err := env.svc.CreateReceipt(ctx, CreateReceiptInput{
		POID: po.ID, WarehouseID: 4, CreatedBy: 3,
		Items: []ReceiptItemInput{
			{POItemID: poLine.ID, QtyReceived: 6},
			{POItemID: poLine.ID, QtyReceived: 6},
		},
	})
	require.NoError(t, err)
	_, items, err := env.svc.GetReceipt(ctx, receipt.ID)
	require.NoError(t, err)
	require.NoError(t, env.svc.ReceiveReceipt(ctx, receipt.ID, []ReceiveLineInput{
		{ReceiptItemID: items[0].ID, QtyActuallyReceived: 6, Condition: ConditionGood},
		{ReceiptItemID: items[1].ID, QtyActuallyReceived: 6, Condition: ConditionGood},
	}, 3))

	// 6 + 6 against 10 ordered: neither line alone exceeds the PO line,
	// together they do
	verify := VerifyReceiptInput{
		ReceiptID: receipt.ID,
		Lines: []VerifyLineInput{
			{ReceiptItemID: items[0].ID, VerifiedQty: 6},
			{ReceiptItemID: items[1].ID, VerifiedQty: 6},
		},
		ActorID: 5,
	}
	err = env.svc.VerifyReceipt(ctx, verify)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Empty(t, env.inventory.changes)

	_, gotLines, err := env.svc.GetPO(ctx, po.ID)
	require.NoError(t, err)
	require.Equal(t, 0.0, gotLines[0].QtyReceived)

	verify.AllowOverReceipt = true
	require.NoError(t, env.svc.VerifyReceipt(ctx, verify))
	require.Len(t, env.inventory.changes, 2)

	_, gotLines, err = env.svc.GetPO(ctx, po.ID)
	require.NoError(t, err)
	require.Equal(t, 12.0, gotLines[0].QtyReceived)
}

func TestReceiptLineMustMatchPOLine(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()
	po, _ := placedPO(t, env)

	_, err := env.svc.CreateReceipt(ctx, CreateReceiptInput{
		POID: po.ID, WarehouseID: 4, CreatedBy: 3,
		Items: []ReceiptItemInput{{POItemID: 99999, QtyReceived: 10}},
	})
	require.ErrorIs(t, err, shared.ErrReceiptLineMismatch)
}

func TestOneOpenReceiptPerPO(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()
	po, poLine := placedPO(t, env)

	_, err := env.svc.CreateReceipt(ctx, CreateReceiptInput{
		POID: po.ID, WarehouseID: 4, CreatedBy: 3,
		Items: []ReceiptItemInput{{POItemID: poLine.ID, QtyReceived: 5}},
	})
	require.NoError(t, err)

	_, err = env.svc.CreateReceipt(ctx, CreateReceiptInput{
		POID: po.ID, WarehouseID: 4, CreatedBy: 3,
		Items: []ReceiptItemInput{{POItemID: poLine.ID, QtyReceived: 5}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCompletePostsOnlyWhenVerifySkippedAndPolicyEnabled(t *testing.T) {
	env := newTestEnv(t, Config{PostOnComplete: true})
	ctx := context.Background()
	po, poLine := placedPO(t, env)

	receipt, err := env.svc.CreateReceipt(ctx, CreateReceiptInput{
		POID: po.ID, WarehouseID: 4, CreatedBy: 3,
		Items: []ReceiptItemInput{{POItemID: poLine.ID, QtyReceived: 10}},
	})
	require.NoError(t, err)
	_, items, err := env.svc.GetReceipt(ctx, receipt.ID)
	require.NoError(t, err)
	require.NoError(t, env.svc.ReceiveReceipt(ctx, receipt.ID, []ReceiveLineInput{
		{ReceiptItemID: items[0].ID, QtyActuallyReceived: 10, Condition: ConditionGood},
	}, 3))

	// verify skipped: complete posts the confirmed quantities
	require.NoError(t, env.svc.CompleteReceipt(ctx, receipt.ID, 5))
	require.Len(t, env.inventory.changes, 1)
	require.Equal(t, 10.0, env.inventory.changes[0].Delta)

	gotPO, poLines, err := env.svc.GetPO(ctx, po.ID)
	require.NoError(t, err)
	require.Equal(t, 10.0, poLines[0].QtyReceived)
	require.Equal(t, PoFullyReceived, gotPO.Status)

	// at most one posting per receipt
	require.ErrorIs(t, env.svc.CompleteReceipt(ctx, receipt.ID, 5), shared.ErrAlreadyProcessed)
	require.Len(t, env.inventory.changes, 1)
}

func TestCompleteAfterVerifyNeverReposts(t *testing.T) {
	env := newTestEnv(t, Config{PostOnComplete: true})
	ctx := context.Background()
	po, poLine := placedPO(t, env)

	receipt, err := env.svc.CreateReceipt(ctx, CreateReceiptInput{
		POID: po.ID, WarehouseID: 4, CreatedBy: 3,
		Items: []ReceiptItemInput{{POItemID: poLine.ID, QtyReceived: 10}},
	})
	require.NoError(t, err)
	_, items, err := env.svc.GetReceipt(ctx, receipt.ID)
	require.NoError(t, err)
	require.NoError(t, env.svc.ReceiveReceipt(ctx, receipt.ID, []ReceiveLineInput{
		{ReceiptItemID: items[0].ID, QtyActuallyReceived: 10, Condition: ConditionGood},
	}, 3))
	require.NoError(t, env.svc.VerifyReceipt(ctx, VerifyReceiptInput{
		ReceiptID: receipt.ID,
		Lines:     []VerifyLineInput{{ReceiptItemID: items[0].ID, VerifiedQty: 10}},
		ActorID:   5,
	}))
	require.Len(t, env.inventory.changes, 1)

	require.NoError(t, env.svc.CompleteReceipt(ctx, receipt.ID, 5))
	require.Len(t, env.inventory.changes, 1, "complete after verify must not post again")

	got, _, err := env.svc.GetReceipt(ctx, receipt.ID)
	require.NoError(t, err)
	require.Equal(t, ReceiptCompleted, got.Status)
}

func TestCompleteWithoutPolicyClosesWithoutPosting(t *testing.T) {
	env := newTestEnv(t, Config{PostOnComplete: false})
	ctx := context.Background()
	po, poLine := placedPO(t, env)

	receipt, err := env.svc.CreateReceipt(ctx, CreateReceiptInput{
		POID: po.ID, WarehouseID: 4, CreatedBy: 3,
		Items: []ReceiptItemInput{{POItemID: poLine.ID, QtyReceived: 10}},
	})
	require.NoError(t, err)
	_, items, err := env.svc.GetReceipt(ctx, receipt.ID)
	require.NoError(t, err)
	require.NoError(t, env.svc.ReceiveReceipt(ctx, receipt.ID, []ReceiveLineInput{
		{ReceiptItemID: items[0].ID, QtyActuallyReceived: 10, Condition: ConditionGood},
	}, 3))

	require.NoError(t, env.svc.CompleteReceipt(ctx, receipt.ID, 5))
	require.Empty(t, env.inventory.changes)
}
