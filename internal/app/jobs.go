package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/netpulse/netpulse/internal/domain"
	"github.com/netpulse/netpulse/pkg/metrics"
	"github.com/robfig/cron/v3"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

func (a *Application) initJob() {
	loc, _ := time.LoadLocation(a.appConfig.System.Location)
	a.sched = cron.New(cron.WithLocation(loc), cron.WithParser(cronParser))

	tick := a.appConfig.Retention.TickIntervalSeconds
	if tick <= 0 {
		tick = 300
	}
	var err error
	_, err = a.sched.AddFunc(fmt.Sprintf("@every %ds", tick), func() {
		a.SchedAggregateRetentionTask()
	})
	if err != nil {
		zap.S().Errorf("init job error %s", err.Error())
	}

	_, err = a.sched.AddFunc("@every 30s", func() {
		go a.SchedSystemMonitorTask()
		go a.SchedProcessMonitorTask()
	})
	if err != nil {
		zap.S().Errorf("init job error %s", err.Error())
	}

	_, err = a.sched.AddFunc("@daily", func() {
		a.SchedClearExpireData()
	})
	if err != nil {
		zap.S().Errorf("init job error %s", err.Error())
	}
}

// SchedAggregateRetentionTask runs one rollup pass followed by one
// prune pass. Aggregate-before-prune is a hard ordering: retention must
// never see raw rows whose hour has not been rolled up yet.
func (a *Application) SchedAggregateRetentionTask() {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error(err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := a.aggregator.Run(ctx); err != nil {
		a.healthTracker.RecordError()
		zap.L().Warn("aggregation pass failed, will retry next tick", zap.Error(err))
		return
	}
	if err := a.retention.Run(ctx); err != nil {
		a.healthTracker.RecordError()
		zap.L().Warn("retention pass failed, will retry next tick", zap.Error(err))
	}
}

// SchedSystemMonitorTask system monitor
func (a *Application) SchedSystemMonitorTask() {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error(err)
		}
	}()

	_cpuuse, err := cpu.Percent(0, false)
	if err == nil && len(_cpuuse) > 0 {
		metrics.SetGauge("system_cpuuse", int64(_cpuuse[0]*100))
	}

	_meminfo, err := mem.VirtualMemory()
	if err == nil {
		metrics.SetGauge("system_memuse", int64(_meminfo.Used/1024/1024))
	}
}

// SchedProcessMonitorTask daemon self monitor
func (a *Application) SchedProcessMonitorTask() {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error(err)
		}
	}()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return
	}

	cpuuse, err := p.CPUPercent()
	if err == nil {
		metrics.SetGauge("netpulse_cpuuse", int64(cpuuse*100))
	}

	meminfo, err := p.MemoryInfo()
	if err == nil {
		metrics.SetGauge("netpulse_memuse", int64(meminfo.RSS/1024/1024))
	}
}

// SchedClearExpireData trims retention-log audit entries older than a
// year.
func (a *Application) SchedClearExpireData() {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error(err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	err := a.dataStore.Write(ctx, func(tx *gorm.DB) error {
		return tx.Where("timestamp < ?", time.Now().Add(-time.Hour*24*365)).
			Delete(&domain.RetentionLog{}).Error
	})
	if err != nil {
		zap.L().Warn("failed to trim retention log", zap.Error(err))
	}
}
