package domain

var Tables = []interface{}{
	&OpenLineBinding{},
	&CrmCredential{},
	&TransportLog{},
}
