package domain

var Tables = []interface{}{
	// System
	&SysConfig{},
	&RetentionLog{},
	&SchemaVersion{},
	// Catalogs
	&App{},
	&WebDomain{},
	// Raw tier
	&NetworkSample{},
	&BrowserDomainSample{},
	// Rollup tiers
	&HourlyAggregate{},
	&DailyAggregate{},
	&BrowserDomainHourly{},
	&BrowserDomainDaily{},
}
