package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/attendly/internal/settlement/domain"
)

var exportHeader = []string{
	"event_id",
	"title",
	"date",
	"generated_at",
	"gross_sales",
	"processor_fee",
	"platform_fee",
	"net_payout",
	"payment_count",
	"refund_count",
	"refunded_amount",
	"settlement_mode",
	"transfer_group",
	"destination_account_id",
}

// ExportCSV renders every snapshot of an event as UTF-8 tabular text,
// one row per snapshot, newest first.
func (s *Service) ExportCSV(ctx context.Context, eventID snowflake.ID) ([]byte, error) {
	snapshots, err := s.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(exportHeader); err != nil {
		return nil, err
	}
	for _, snapshot := range snapshots {
		if err := w.Write(exportRow(snapshot)); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func exportRow(snapshot domain.Snapshot) []string {
	return []string{
		strconv.FormatInt(int64(snapshot.EventID), 10),
		snapshot.EventTitle,
		snapshot.SnapshotDate,
		snapshot.GeneratedAt.UTC().Format(time.RFC3339),
		strconv.FormatInt(snapshot.GrossSales, 10),
		strconv.FormatInt(snapshot.ProcessorFee, 10),
		strconv.FormatInt(snapshot.PlatformFee, 10),
		strconv.FormatInt(snapshot.NetPayout, 10),
		strconv.FormatInt(snapshot.PaymentCount, 10),
		strconv.FormatInt(snapshot.RefundedCount, 10),
		strconv.FormatInt(snapshot.RefundedAmount, 10),
		snapshot.SettlementMode,
		snapshot.TransferGroup,
		snapshot.DestinationAccountID,
	}
}
