package listeners

// BaseTableListener names the table a listener follows and the key columns its
// notifications carry. No columns means whole rows.
type BaseTableListener struct {
	tableName   string
	channelName string
	columns     []string
}

func NewBaseTableListener(tableName string, columns ...string) *BaseTableListener {
	return &BaseTableListener{
		tableName:   tableName,
		channelName: NotifyChannel,
		columns:     columns,
	}
}

func (b *BaseTableListener) GetTableName() string {
	return b.tableName
}

func (b *BaseTableListener) GetChannelName() string {
	return b.channelName
}

func (b *BaseTableListener) KeyColumns() []string {
	return b.columns
}
