// Package scheduler decides which tasks are due and when the daemon ticks.
//
// Due-set computation is pure: it depends only on the task list, the last
// run per task, the current time and the heartbeat interval. The daemon's
// tick times are clock-aligned (see AlignedSchedule).
package scheduler
