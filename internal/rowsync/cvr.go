package rowsync

// ClientView is a snapshot of {entity id -> rowversion} for one entity
// collection at the moment a pull was served.
type ClientView map[string]int

func clientViewOf(metas []RowMeta) ClientView {
	view := make(ClientView, len(metas))
	for _, meta := range metas {
		view[meta.ID] = meta.RowVersion
	}
	return view
}

// PutsSince returns the ids that are new or have a higher rowversion than
// in base.
func (v ClientView) PutsSince(base ClientView) []string {
	puts := make([]string, 0)
	for id, rowVersion := range v {
		prev, ok := base[id]
		if !ok || prev < rowVersion {
			puts = append(puts, id)
		}
	}
	return puts
}

// DelsSince returns the ids present in base but gone from v.
func (v ClientView) DelsSince(base ClientView) []string {
	dels := make([]string, 0)
	for id := range base {
		if _, ok := v[id]; !ok {
			dels = append(dels, id)
		}
	}
	return dels
}

// IDs returns every id in the view.
func (v ClientView) IDs() []string {
	ids := make([]string, 0, len(v))
	for id := range v {
		ids = append(ids, id)
	}
	return ids
}

// ClientViewRecord captures what a client group was last told it has, per
// collection, plus the client version baseline observed at snapshot time.
// A CVR is immutable once issued; every pull caches a fresh one.
type ClientViewRecord struct {
	Lists         ClientView
	Shares        ClientView
	Todos         ClientView
	ClientVersion int
}

func emptyCVR() *ClientViewRecord {
	return &ClientViewRecord{
		Lists:  ClientView{},
		Shares: ClientView{},
		Todos:  ClientView{},
	}
}

// cvrDiff is the per-collection change set between two CVRs.
type cvrDiff struct {
	listPuts, listDels   []string
	sharePuts, shareDels []string
	todoPuts, todoDels   []string
}

func diffCVR(base, next *ClientViewRecord) cvrDiff {
	return cvrDiff{
		listPuts:  next.Lists.PutsSince(base.Lists),
		listDels:  next.Lists.DelsSince(base.Lists),
		sharePuts: next.Shares.PutsSince(base.Shares),
		shareDels: next.Shares.DelsSince(base.Shares),
		todoPuts:  next.Todos.PutsSince(base.Todos),
		todoDels:  next.Todos.DelsSince(base.Todos),
	}
}

func (d cvrDiff) size() int {
	return len(d.listPuts) + len(d.listDels) +
		len(d.sharePuts) + len(d.shareDels) +
		len(d.todoPuts) + len(d.todoDels)
}
