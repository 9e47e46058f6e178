package mobilesync

import (
	"context"
	"errors"
	"fmt"
)

const hostCancelReason = "Sync cancelled by host"

// PullRequest describes a one way sync from the device to the host.
type PullRequest struct {
	DataClass   string
	Anchors     *Anchors
	HostVersion uint64
	Mode        SyncType
}

// PullRecords starts a sync of req.DataClass and hands every batch the device
// sends to fn. A fast sync pulls the changes since the anchors, any other
// mode pulls all records. Each batch is acknowledged after fn returns. When
// ctx is done or fn fails the session is cancelled before returning.
func (c *Client) PullRecords(ctx context.Context, req PullRequest, fn func(*Changes) error) (*StartResult, error) {
	var anchors []*Anchors
	if req.Anchors != nil {
		anchors = append(anchors, req.Anchors)
	}
	res, err := c.Start(req.DataClass, anchors, req.HostVersion, req.Mode)
	if err != nil {
		return nil, err
	}

	var changes *Changes
	if res.Mode == Fast {
		changes, err = c.GetChangesFromDevice()
	} else {
		changes, err = c.GetAllRecordsFromDevice()
	}
	for {
		if err != nil {
			return res, c.abort(err.Error(), err)
		}
		if err := ctx.Err(); err != nil {
			return res, c.abort(hostCancelReason, err)
		}
		if err := fn(changes); err != nil {
			return res, c.abort(err.Error(), err)
		}
		if err := c.AcknowledgeChangesFromDevice(); err != nil {
			return res, c.abort(err.Error(), err)
		}
		if !changes.MoreChanges {
			break
		}
		changes, err = c.ReceiveChanges()
	}

	if err := c.ReadyToSendChangesFromComputer(); err != nil {
		return res, c.abort(err.Error(), err)
	}
	if err := c.Finish(); err != nil {
		return res, err
	}
	return res, nil
}

func (c *Client) abort(reason string, cause error) error {
	if errors.Is(cause, ErrCancelled) || errors.Is(cause, ErrClosed) {
		return cause
	}
	if err := c.Cancel(reason); err != nil {
		return fmt.Errorf("%w (cancel failed: %v)", cause, err)
	}
	return cause
}
