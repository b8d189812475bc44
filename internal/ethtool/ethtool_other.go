//go:build !linux

package ethtool

import "github.com/shiwa/timecard-mini/synce/internal/synce"

type Handle struct{}

func Open(names []string) (*Handle, error) { return nil, errUnsupported }

func (h *Handle) Close() error { return nil }
func (h *Handle) Link(int) (synce.LinkStatus, error) { return synce.LinkStatus{}, errUnsupported }
func (h *Handle) AnegMaster(int) (bool, error) { return false, errUnsupported }
func (h *Handle) ManualNeg(int) (synce.ManualNeg, error) { return synce.NegDisabled, errUnsupported }
func (h *Handle) SetManualNeg(int, synce.ManualNeg) error { return errUnsupported }
