package hwstats

import "time"

// GeneratorDelta is the change of the DGGEN counters between two snapshots.
type GeneratorDelta struct {
	SeqNum         int64 `json:"seq_num" yaml:"seq_num"`
	SizeSettings   int64 `json:"size_settings" yaml:"size_settings"`
	TimerSettings  int64 `json:"timer_settings" yaml:"timer_settings"`
	InSubframeCnt  int64 `json:"in_subframe_cnt" yaml:"in_subframe_cnt"`
	OutSubframeCnt int64 `json:"out_subframe_cnt" yaml:"out_subframe_cnt"`
}

// PortDelta is the change of one port's counters between two snapshots.
type PortDelta struct {
	Port             int   `json:"port" yaml:"port"`
	TotalSubframes   int64 `json:"total_subframes" yaml:"total_subframes"`
	BufferFullTrunc  int64 `json:"buffer_full_trunc" yaml:"buffer_full_trunc"`
	PacketSizeTrunc  int64 `json:"packet_size_trunc" yaml:"packet_size_trunc"`
	BufferFullDrop   int64 `json:"buffer_full_drop" yaml:"buffer_full_drop"`
	OutPacketCount   int64 `json:"out_packet_count" yaml:"out_packet_count"`
	TruncUserRequest int64 `json:"trunc_user_req" yaml:"trunc_user_req"`
	PhyRxErrors      int64 `json:"phy_rxerr" yaml:"phy_rxerr"`
	DropUserRequest  int64 `json:"drop_user_req" yaml:"drop_user_req"`
}

// Delta is after minus before for every counter. Counters that wrapped
// between the snapshots show up as negative values; no correction is made.
type Delta struct {
	Elapsed   time.Duration  `json:"elapsed" yaml:"elapsed"`
	Generator GeneratorDelta `json:"generator" yaml:"generator"`
	Ports     []PortDelta    `json:"ports" yaml:"ports"`
}

func sub(after, before uint32) int64 {
	return int64(after) - int64(before)
}

// Diff computes after - before. Ports missing from either snapshot are left out.
func Diff(before, after Snapshot) Delta {
	d := Delta{
		Elapsed: after.Time.Sub(before.Time),
		Generator: GeneratorDelta{
			SeqNum:         sub(after.Generator.SeqNum, before.Generator.SeqNum),
			SizeSettings:   sub(after.Generator.SizeSettings, before.Generator.SizeSettings),
			TimerSettings:  sub(after.Generator.TimerSettings, before.Generator.TimerSettings),
			InSubframeCnt:  sub(after.Generator.InSubframeCnt, before.Generator.InSubframeCnt),
			OutSubframeCnt: sub(after.Generator.OutSubframeCnt, before.Generator.OutSubframeCnt),
		},
	}

	n := min(len(before.Ports), len(after.Ports))
	d.Ports = make([]PortDelta, n)
	for i := 0; i < n; i++ {
		a, b := after.Ports[i], before.Ports[i]
		d.Ports[i] = PortDelta{
			Port:             i,
			TotalSubframes:   sub(a.TotalSubframes, b.TotalSubframes),
			BufferFullTrunc:  sub(a.BufferFullTrunc, b.BufferFullTrunc),
			PacketSizeTrunc:  sub(a.PacketSizeTrunc, b.PacketSizeTrunc),
			BufferFullDrop:   sub(a.BufferFullDrop, b.BufferFullDrop),
			OutPacketCount:   sub(a.OutPacketCount, b.OutPacketCount),
			TruncUserRequest: sub(a.TruncUserRequest, b.TruncUserRequest),
			PhyRxErrors:      sub(a.PhyRxErrors, b.PhyRxErrors),
			DropUserRequest:  sub(a.DropUserRequest, b.DropUserRequest),
		}
	}
	return d
}
